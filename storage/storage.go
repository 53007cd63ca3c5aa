// Package storage uploads files to storage buckets and downloads them.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/appwrite/go-cliutils/transport"
	"github.com/appwrite/go-cliutils/upload"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

const (
	filesPath        = "/storage/buckets/{bucketId}/files"
	fileDownloadPath = "/storage/buckets/{bucketId}/files/{fileId}/download"
	fileField        = "file"

	// UniqueID asks the server to generate the file ID.
	UniqueID = "unique()"
)

// Uploader sends a file in chunks and returns the final response.
type Uploader interface {
	Upload(ctx context.Context, req upload.Request) (transport.Response, error)
}

// Downloader saves a binary API response to disk.
type Downloader interface {
	Download(ctx context.Context, path string, params map[string]interface{}, dest string) error
}

// File ...
type File struct {
	ID             string   `json:"$id"`
	BucketID       string   `json:"bucketId"`
	CreatedAt      string   `json:"$createdAt"`
	UpdatedAt      string   `json:"$updatedAt"`
	Permissions    []string `json:"$permissions"`
	Name           string   `json:"name"`
	Signature      string   `json:"signature"`
	MimeType       string   `json:"mimeType"`
	SizeOriginal   int64    `json:"sizeOriginal"`
	ChunksTotal    int      `json:"chunksTotal"`
	ChunksUploaded int      `json:"chunksUploaded"`
}

// CreateFileParams ...
type CreateFileParams struct {
	BucketID string
	// FileID defaults to UniqueID.
	FileID      string
	File        string
	Permissions []string
	OnProgress  upload.ProgressFunc
}

// Service ...
type Service struct {
	uploader   Uploader
	downloader Downloader
	logger     log.Logger
}

// NewService ...
func NewService(uploader Uploader, downloader Downloader, logger log.Logger) *Service {
	return &Service{
		uploader:   uploader,
		downloader: downloader,
		logger:     logger,
	}
}

// CreateFile uploads a local file into a bucket in chunks.
func (s *Service) CreateFile(ctx context.Context, params CreateFileParams) (File, error) {
	if params.BucketID == "" {
		return File{}, fmt.Errorf("bucket ID is empty")
	}
	if params.File == "" {
		return File{}, fmt.Errorf("file path is empty")
	}

	fileID := params.FileID
	if fileID == "" {
		fileID = UniqueID
	}

	body := map[string]interface{}{
		"fileId": fileID,
	}
	if params.Permissions != nil {
		body["permissions"] = params.Permissions
	}

	path := strings.NewReplacer("{bucketId}", params.BucketID).Replace(filesPath)
	resp, err := s.uploader.Upload(ctx, upload.Request{
		SourcePath: params.File,
		Path:       path,
		FileField:  fileField,
		Params:     body,
		OnProgress: params.OnProgress,
	})
	if err != nil {
		return File{}, fmt.Errorf("create file in bucket %s: %w", params.BucketID, err)
	}

	var file File
	if err := resp.Decode(&file); err != nil {
		return File{}, err
	}

	s.logger.Donef("File %s (%s) uploaded to bucket %s", file.ID, units.HumanSize(float64(file.SizeOriginal)), params.BucketID)
	return file, nil
}

// GetFileDownload saves the content of a file to dest.
func (s *Service) GetFileDownload(ctx context.Context, bucketID, fileID, dest string) error {
	if bucketID == "" {
		return fmt.Errorf("bucket ID is empty")
	}
	if fileID == "" {
		return fmt.Errorf("file ID is empty")
	}
	if dest == "" {
		return fmt.Errorf("destination path is empty")
	}

	path := strings.NewReplacer("{bucketId}", bucketID, "{fileId}", fileID).Replace(fileDownloadPath)
	if err := s.downloader.Download(ctx, path, nil, dest); err != nil {
		return fmt.Errorf("download file %s of bucket %s: %w", fileID, bucketID, err)
	}

	s.logger.Donef("File %s downloaded to %s", fileID, dest)
	return nil
}
