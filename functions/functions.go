// Package functions creates function deployments from local code.
package functions

import (
	"context"
	"fmt"
	"strings"

	"github.com/appwrite/go-cliutils/internal/codearchive"
	"github.com/appwrite/go-cliutils/transport"
	"github.com/appwrite/go-cliutils/upload"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

const (
	deploymentsPath = "/functions/{functionId}/deployments"
	codeField       = "code"
)

// Uploader sends a file in chunks and returns the final response.
type Uploader interface {
	Upload(ctx context.Context, req upload.Request) (transport.Response, error)
}

// Deployment ...
type Deployment struct {
	ID            string `json:"$id"`
	CreatedAt     string `json:"$createdAt"`
	UpdatedAt     string `json:"$updatedAt"`
	Type          string `json:"type"`
	ResourceID    string `json:"resourceId"`
	ResourceType  string `json:"resourceType"`
	Entrypoint    string `json:"entrypoint"`
	SourceSize    int64  `json:"sourceSize"`
	BuildSize     int64  `json:"buildSize"`
	TotalSize     int64  `json:"totalSize"`
	BuildID       string `json:"buildId"`
	Activate      bool   `json:"activate"`
	Status        string `json:"status"`
	BuildLogs     string `json:"buildLogs"`
	BuildDuration int    `json:"buildDuration"`
}

// CreateDeploymentParams ...
type CreateDeploymentParams struct {
	FunctionID string
	// Code is a code archive or a directory, which is packaged before the upload.
	Code     string
	Activate bool
	// Entrypoint and Commands are optional, the function's settings are used when empty.
	Entrypoint string
	Commands   string
	// Ignore lists glob patterns excluded when Code is a directory.
	Ignore     []string
	OnProgress upload.ProgressFunc
}

// Service ...
type Service struct {
	uploader Uploader
	preparer *codearchive.Preparer
	logger   log.Logger
}

// NewService ...
func NewService(uploader Uploader, logger log.Logger) *Service {
	return &Service{
		uploader: uploader,
		preparer: codearchive.NewPreparer(logger),
		logger:   logger,
	}
}

// CreateDeployment uploads the function code in chunks and returns the created deployment.
func (s *Service) CreateDeployment(ctx context.Context, params CreateDeploymentParams) (Deployment, error) {
	if params.FunctionID == "" {
		return Deployment{}, fmt.Errorf("function ID is empty")
	}

	archive, err := s.preparer.Prepare(params.Code, params.Ignore)
	if err != nil {
		return Deployment{}, err
	}
	defer func() {
		if err := archive.Remove(); err != nil {
			s.logger.Warnf("Failed to remove %s: %s", archive.Path, err)
		}
	}()

	body := map[string]interface{}{
		"activate": params.Activate,
	}
	if params.Entrypoint != "" {
		body["entrypoint"] = params.Entrypoint
	}
	if params.Commands != "" {
		body["commands"] = params.Commands
	}

	path := strings.NewReplacer("{functionId}", params.FunctionID).Replace(deploymentsPath)
	resp, err := s.uploader.Upload(ctx, upload.Request{
		SourcePath: archive.Path,
		Path:       path,
		FileField:  codeField,
		Params:     body,
		OnProgress: params.OnProgress,
	})
	if err != nil {
		return Deployment{}, fmt.Errorf("create deployment of function %s: %w", params.FunctionID, err)
	}

	var deployment Deployment
	if err := resp.Decode(&deployment); err != nil {
		return Deployment{}, err
	}

	s.logger.Donef("Deployment %s created for function %s (%s)",
		deployment.ID, params.FunctionID, units.HumanSize(float64(deployment.SourceSize)))
	return deployment, nil
}
