package sites

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/appwrite/go-cliutils/internal/apitest"
	"github.com/appwrite/go-cliutils/transport"
	"github.com/appwrite/go-cliutils/upload"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uploaderFunc func(ctx context.Context, req upload.Request) (transport.Response, error)

func (f uploaderFunc) Upload(ctx context.Context, req upload.Request) (transport.Response, error) {
	return f(ctx, req)
}

func TestService_CreateDeployment(t *testing.T) {
	// Given
	server := apitest.NewServer(t, codeField, "site-deployment-1", map[string]interface{}{
		"resourceId": "my-site",
		"status":     "processing",
	})

	srcDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "public"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "public", "index.html"), randomData(8*1024), 0600))
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "node_modules", "react"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "node_modules", "react", "index.js"), []byte("react"), 0600))

	logger := log.NewLogger()
	service := NewService(upload.NewUploader(server.NewClient(t), 512, logger), logger)

	var lastProgress float64

	// When
	deployment, err := service.CreateDeployment(context.Background(), CreateDeploymentParams{
		SiteID:          "my-site",
		Code:            srcDir,
		Activate:        true,
		BuildCommand:    "npm run build",
		OutputDirectory: "./dist",
		Ignore:          []string{"node_modules/**"},
		OnProgress: func(event upload.ProgressEvent) {
			assert.GreaterOrEqual(t, event.Progress, lastProgress)
			lastProgress = event.Progress
		},
	})

	// Then
	require.NoError(t, err)
	assert.Equal(t, "site-deployment-1", deployment.ID)
	assert.Equal(t, "my-site", deployment.ResourceID)
	assert.Equal(t, float64(100), lastProgress)

	requests := server.Requests()
	require.NotEmpty(t, requests)
	for i, req := range requests {
		assert.Equal(t, "/v1/sites/my-site/deployments", req.Path)
		assert.NotEmpty(t, req.ContentRange, "chunk %d", i)
		assert.Equal(t, []string{"npm run build"}, req.Fields["buildCommand"])
		assert.Equal(t, []string{"./dist"}, req.Fields["outputDirectory"])
		assert.NotContains(t, req.Fields, "installCommand")
	}
}

func TestService_CreateDeployment_RemovesPackagedCode(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "index.html"), []byte("<html></html>"), 0600))

	var archivePath string
	service := NewService(uploaderFunc(func(_ context.Context, req upload.Request) (transport.Response, error) {
		archivePath = req.SourcePath
		assert.FileExists(t, req.SourcePath)
		assert.Equal(t, codeField, req.FileField)
		return nil, errors.New("connection reset")
	}), log.NewLogger())

	_, err := service.CreateDeployment(context.Background(), CreateDeploymentParams{SiteID: "my-site", Code: srcDir})

	assert.EqualError(t, err, "create deployment of site my-site: connection reset")
	assert.NoFileExists(t, archivePath)
}

func TestService_CreateDeployment_MissingSite(t *testing.T) {
	service := NewService(uploaderFunc(func(context.Context, upload.Request) (transport.Response, error) {
		t.Fatal("nothing should be uploaded")
		return nil, nil
	}), log.NewLogger())

	_, err := service.CreateDeployment(context.Background(), CreateDeploymentParams{Code: "."})

	assert.EqualError(t, err, "site ID is empty")
}

// randomData does not compress, so the archive spans several chunks.
func randomData(size int) []byte {
	data := make([]byte, size)
	rand.New(rand.NewSource(42)).Read(data) //nolint:gosec
	return data
}
