// Package config reads the client configuration from the environment.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/appwrite/go-cliutils/transport"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// Environment variables read by NewConfig.
const (
	EndpointEnvKey  = "APPWRITE_ENDPOINT"
	ProjectIDEnvKey = "APPWRITE_PROJECT_ID"
	APIKeyEnvKey    = "APPWRITE_API_KEY"
	ChunkSizeEnvKey = "APPWRITE_CHUNK_SIZE"
	RetryMaxEnvKey  = "APPWRITE_RETRY_MAX"
	VerboseEnvKey   = "APPWRITE_VERBOSE"
)

const (
	defaultChunkSize = "5MiB"
	defaultRetryMax  = 3
)

// Secret is a value that is never printed.
type Secret string

// String ...
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "*****"
}

// Config ...
type Config struct {
	Endpoint  string
	ProjectID string
	APIKey    Secret
	// ChunkSize is the size of one upload chunk in bytes.
	ChunkSize int64
	RetryMax  int
	Verbose   bool
}

// NewConfig ...
func NewConfig(envRepo env.Repository) (Config, error) {
	endpoint := strings.TrimSpace(envRepo.Get(EndpointEnvKey))
	if endpoint == "" {
		return Config{}, fmt.Errorf("the variable '%s' is not defined", EndpointEnvKey)
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return Config{}, fmt.Errorf("invalid %s (%s): should start with http:// or https://", EndpointEnvKey, endpoint)
	}

	projectID := strings.TrimSpace(envRepo.Get(ProjectIDEnvKey))
	if projectID == "" {
		return Config{}, fmt.Errorf("the variable '%s' is not defined", ProjectIDEnvKey)
	}

	chunkSizeValue := envRepo.Get(ChunkSizeEnvKey)
	if chunkSizeValue == "" {
		chunkSizeValue = defaultChunkSize
	}
	chunkSize, err := units.RAMInBytes(chunkSizeValue)
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s (%s): %w", ChunkSizeEnvKey, chunkSizeValue, err)
	}
	if chunkSize <= 0 {
		return Config{}, fmt.Errorf("invalid %s (%s): should be positive", ChunkSizeEnvKey, chunkSizeValue)
	}

	retryMax := defaultRetryMax
	if value := envRepo.Get(RetryMaxEnvKey); value != "" {
		retryMax, err = strconv.Atoi(value)
		if err != nil || retryMax < 0 {
			return Config{}, fmt.Errorf("invalid %s (%s): should be a non-negative integer", RetryMaxEnvKey, value)
		}
	}

	verbose := false
	if value := envRepo.Get(VerboseEnvKey); value != "" {
		verbose, err = strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s (%s): %w", VerboseEnvKey, value, err)
		}
	}

	return Config{
		Endpoint:  strings.TrimSuffix(endpoint, "/"),
		ProjectID: projectID,
		APIKey:    Secret(envRepo.Get(APIKeyEnvKey)),
		ChunkSize: chunkSize,
		RetryMax:  retryMax,
		Verbose:   verbose,
	}, nil
}

// TransportParams ...
func (c Config) TransportParams() transport.Params {
	return transport.Params{
		Endpoint:  c.Endpoint,
		ProjectID: c.ProjectID,
		APIKey:    string(c.APIKey),
		RetryMax:  c.RetryMax,
	}
}

// Print logs the configuration with secrets masked.
func (c Config) Print(logger log.Logger) {
	logger.Println()
	logger.Infof("Configuration:")
	logger.Printf("- Endpoint: %s", c.Endpoint)
	logger.Printf("- ProjectID: %s", c.ProjectID)
	logger.Printf("- APIKey: %s", c.APIKey)
	logger.Printf("- ChunkSize: %s", units.BytesSize(float64(c.ChunkSize)))
	logger.Printf("- RetryMax: %d", c.RetryMax)
	logger.Printf("- Verbose: %v", c.Verbose)
}
