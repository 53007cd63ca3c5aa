//go:build integration
// +build integration

package integration

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/appwrite/go-cliutils/config"
	"github.com/appwrite/go-cliutils/transport"
	"github.com/appwrite/go-cliutils/upload"
	"github.com/bitrise-io/go-utils/v2/command"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
)

var logger = log.NewLogger()

// newClient connects to the project configured by the APPWRITE_* variables.
func newClient(t *testing.T) (*transport.Client, *upload.Uploader) {
	cfg, err := config.NewConfig(env.NewRepository())
	if err != nil {
		t.Skipf("integration environment is not configured: %s", err)
	}

	logger.EnableDebugLog(true)
	client, err := transport.NewClient(cfg.TransportParams(), logger)
	if err != nil {
		t.Fatal(err)
	}
	return client, upload.NewUploader(client, cfg.ChunkSize, logger)
}

func requireEnv(t *testing.T, key string) string {
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s is not set", key)
	}
	return value
}

func checksumOf(bytes []byte) string {
	hash := sha256.New()
	hash.Write(bytes)
	return hex.EncodeToString(hash.Sum(nil))
}

func listArchiveContents(path string) ([]string, error) {
	output, err := command.NewFactory(env.NewRepository()).
		Create("tar", []string{"-tzf", path}, nil).
		RunAndReturnTrimmedCombinedOutput()

	if err != nil {
		return nil, fmt.Errorf("failed to list archive contents, out: %s, error: %w", output, err)
	}

	contentList := strings.Split(output, "\n")
	for i, content := range contentList {
		contentList[i] = strings.TrimSuffix(content, "/")
	}

	return contentList, nil
}
