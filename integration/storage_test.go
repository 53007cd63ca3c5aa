//go:build integration
// +build integration

package integration

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/appwrite/go-cliutils/storage"
	"github.com/appwrite/go-cliutils/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageRoundTrip(t *testing.T) {
	// Given
	bucketID := requireEnv(t, "APPWRITE_TEST_BUCKET_ID")
	client, uploader := newClient(t)
	service := storage.NewService(uploader, client, logger)

	// spans three chunks with the default chunk size
	data := make([]byte, 2*upload.DefaultChunkSize+1024)
	rand.Read(data) //nolint:gosec
	testFile := filepath.Join(t.TempDir(), "integration-test.bin")
	require.NoError(t, os.WriteFile(testFile, data, 0600))

	var progress []float64

	// When
	file, err := service.CreateFile(context.Background(), storage.CreateFileParams{
		BucketID: bucketID,
		File:     testFile,
		OnProgress: func(event upload.ProgressEvent) {
			progress = append(progress, event.Progress)
		},
	})

	// Then
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), file.SizeOriginal)
	assert.Equal(t, file.ChunksTotal, file.ChunksUploaded)
	require.NotEmpty(t, progress)
	assert.Equal(t, float64(100), progress[len(progress)-1])

	downloadPath := filepath.Join(t.TempDir(), "downloaded.bin")
	require.NoError(t, service.GetFileDownload(context.Background(), bucketID, file.ID, downloadPath))

	downloaded, err := os.ReadFile(downloadPath)
	require.NoError(t, err)
	assert.Equal(t, checksumOf(data), checksumOf(downloaded))
}
