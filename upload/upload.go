// Package upload sends large files to the API in consecutive chunks.
//
// Every chunk is a multipart POST to the same endpoint. The first response
// assigns the resource id, which is then sent as x-appwrite-id so the server
// appends the following chunks, positioned by their Content-Range, to the
// same deployment or file. Chunks are sent one at a time, in order.
//
// An upload is not resumable across processes: its state lives only for the
// duration of one Upload call. Persisting the resource id and the number of
// bytes sent, then re-entering the loop at that offset, would be enough to
// add it, since the server already appends by id and range.
package upload

import (
	"context"
	"fmt"

	"github.com/appwrite/go-cliutils/transport"
	"github.com/bitrise-io/go-utils/v2/log"
)

// DefaultChunkSize is the chunk size accepted by the API.
const DefaultChunkSize int64 = 5 * 1024 * 1024

// Transport performs a single API request.
type Transport interface {
	Call(ctx context.Context, method, path string, headers map[string]string, params map[string]interface{}) (transport.Response, error)
}

// Request describes one upload. It must not be modified once the upload starts.
type Request struct {
	// SourcePath is the local file to upload. Only used by Uploader.Upload.
	SourcePath string
	// Path is the API path every chunk is posted to.
	Path string
	// FileField is the multipart field carrying the chunk bytes.
	FileField string
	// Params are sent alongside the file part with every chunk.
	Params map[string]interface{}
	// OnProgress is optional.
	OnProgress ProgressFunc
}

func (r Request) validate() error {
	if r.Path == "" {
		return fmt.Errorf("upload path is empty")
	}
	if r.FileField == "" {
		return fmt.Errorf("file field name is empty")
	}
	return nil
}

// Uploader ...
type Uploader struct {
	client    Transport
	chunkSize int64
	logger    log.Logger
}

// NewUploader creates an Uploader splitting files into chunkSize byte chunks.
// A non-positive chunkSize falls back to DefaultChunkSize.
func NewUploader(client Transport, chunkSize int64, logger log.Logger) *Uploader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &Uploader{
		client:    client,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// ChunkSize ...
func (u *Uploader) ChunkSize() int64 {
	return u.chunkSize
}

// Upload sends the file at req.SourcePath and returns the response to the last chunk,
// which describes the complete resource.
func (u *Uploader) Upload(ctx context.Context, req Request) (transport.Response, error) {
	source, err := OpenFile(req.SourcePath)
	if err != nil {
		return nil, err
	}

	return u.UploadSource(ctx, source, req)
}

// UploadSource works like Upload but reads the content from source.
// The source is closed when the upload ends, whatever the outcome.
func (u *Uploader) UploadSource(ctx context.Context, source ByteSource, req Request) (transport.Response, error) {
	defer func() {
		if err := source.Close(); err != nil {
			u.logger.Warnf("Failed to close %s: %s", source.Name(), err)
		}
	}()

	if err := req.validate(); err != nil {
		return nil, err
	}

	return newSession(u, source, req).run(ctx)
}
