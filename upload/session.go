package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/appwrite/go-cliutils/transport"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// readBlockSize is how much is read from the source at once, independently of the chunk size.
const readBlockSize = 64 * 1024

// maxEmptyReads is how many consecutive reads may return no data and no error.
const maxEmptyReads = 100

// state is owned by a single session and never shared.
type state struct {
	// resourceID is set by the first response and never changes afterwards.
	resourceID string
	// chunk is the 1-based index of the next chunk to send.
	chunk     int
	bytesSent int64
	totalSize int64
}

type session struct {
	client     Transport
	logger     log.Logger
	source     ByteSource
	path       string
	fileField  string
	params     map[string]interface{}
	onProgress ProgressFunc
	chunkSize  int64

	buffer  *accumulator
	state   state
	elapsed time.Duration
}

func newSession(u *Uploader, source ByteSource, req Request) *session {
	params := make(map[string]interface{}, len(req.Params)+1)
	for k, v := range req.Params {
		params[k] = v
	}

	return &session{
		client:     u.client,
		logger:     u.logger,
		source:     source,
		path:       req.Path,
		fileField:  req.FileField,
		params:     params,
		onProgress: req.OnProgress,
		chunkSize:  u.chunkSize,
		buffer:     newAccumulator(u.chunkSize),
		state:      state{chunk: 1},
	}
}

func (s *session) run(ctx context.Context) (transport.Response, error) {
	s.state.totalSize = s.source.Size()
	s.logger.Debugf("Uploading %s (%s) to %s in chunks of %s",
		s.source.Name(), units.HumanSize(float64(s.state.totalSize)), s.path, units.HumanSize(float64(s.chunkSize)))

	reader := io.LimitReader(s.source, s.state.totalSize)
	block := make([]byte, readBlockSize)

	var last transport.Response
	var bytesRead int64
	emptyReads := 0
	for {
		n, readErr := reader.Read(block)
		bytesRead += int64(n)

		if n == 0 && readErr == nil {
			emptyReads++
			if emptyReads >= maxEmptyReads {
				return nil, newError(ErrSourceUnreadable, s.state.chunk, fmt.Errorf("read %s: %w", s.source.Name(), io.ErrNoProgress))
			}
			continue
		}
		emptyReads = 0

		pending := block[:n]
		for len(pending) > 0 {
			taken := s.buffer.Append(pending)
			pending = pending[taken:]

			if s.buffer.Full() {
				resp, err := s.flush(ctx)
				if err != nil {
					return nil, err
				}
				last = resp
			}
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, newError(ErrSourceUnreadable, s.state.chunk, fmt.Errorf("read %s: %w", s.source.Name(), readErr))
		}
	}

	if bytesRead != s.state.totalSize {
		return nil, newError(ErrSourceUnreadable, s.state.chunk,
			fmt.Errorf("read %d of %d bytes of %s: file changed during upload", bytesRead, s.state.totalSize, s.source.Name()))
	}

	// The trimmed remainder, or the single empty chunk of an empty file.
	// Nothing is left when the size is an exact multiple of the chunk size.
	if s.buffer.Len() > 0 || s.state.chunk == 1 {
		resp, err := s.flush(ctx)
		if err != nil {
			return nil, err
		}
		last = resp
	}

	chunks := s.state.chunk - 1
	s.logger.Debugf("Uploaded %d chunk(s) of %s in %s (avg: %s)",
		chunks, s.source.Name(), s.elapsed.Round(time.Millisecond), (s.elapsed / time.Duration(chunks)).Round(time.Millisecond))

	return last, nil
}

// flush sends the buffered chunk and advances the state.
func (s *session) flush(ctx context.Context) (transport.Response, error) {
	chunk := s.buffer.Chunk()
	headers := s.headers(len(chunk))

	params := make(map[string]interface{}, len(s.params)+1)
	for k, v := range s.params {
		params[k] = v
	}
	params[s.fileField] = transport.InputFile{Name: s.source.Name(), Data: chunk}

	s.logger.Debugf("Uploading chunk %d (%s) of %s [range=%q]",
		s.state.chunk, units.HumanSize(float64(len(chunk))), s.source.Name(), headers["content-range"])

	start := time.Now()
	resp, err := s.client.Call(ctx, http.MethodPost, s.path, headers, params)
	if err != nil {
		return nil, newError(ErrTransportFailure, s.state.chunk, err)
	}
	s.elapsed += time.Since(start)

	remaining := s.state.totalSize - s.state.bytesSent - int64(len(chunk))
	if err := s.fixResourceID(resp, remaining > 0); err != nil {
		return nil, err
	}

	s.state.bytesSent += int64(len(chunk))
	s.state.chunk++
	s.buffer.Reset()

	if s.onProgress != nil {
		s.onProgress(newProgressEvent(&s.state, s.chunkSize, resp))
	}

	return resp, nil
}

// headers returns the headers of the next chunk holding size bytes.
func (s *session) headers(size int) map[string]string {
	headers := map[string]string{
		"content-type": transport.ContentTypeMultipart,
	}

	singleChunk := s.state.totalSize <= s.chunkSize && s.state.chunk == 1
	if !singleChunk {
		start := s.state.bytesSent
		end := start + int64(size) - 1
		headers["content-range"] = fmt.Sprintf("bytes %d-%d/%d", start, end, s.state.totalSize)
	}

	if s.state.resourceID != "" {
		headers["x-appwrite-id"] = s.state.resourceID
	}

	return headers
}

func (s *session) fixResourceID(resp transport.Response, moreChunks bool) error {
	id := resp.String("$id")

	if s.state.resourceID == "" {
		if id == "" && moreChunks {
			return newError(ErrProtocolViolation, s.state.chunk, fmt.Errorf("response has no $id, the remaining chunks cannot be addressed"))
		}
		s.state.resourceID = id
		return nil
	}

	if id == "" {
		return newError(ErrProtocolViolation, s.state.chunk, fmt.Errorf("response has no $id, expected %q", s.state.resourceID))
	}
	if id != s.state.resourceID {
		return newError(ErrProtocolViolation, s.state.chunk, fmt.Errorf("response $id %q does not match %q", id, s.state.resourceID))
	}
	return nil
}
