// Package sites creates site deployments from local code.
package sites

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
	deploymentsPath = "/sites/{siteId}/deployments"
	codeField       = "code"
)

// Uploader sends a file in chunks and returns the final response.
type Uploader interface {
	Upload(ctx context.Context, req upload.Request) (transport.Response, error)
}

// Deployment ...
type Deployment struct {
	ID                string `json:"$id"`
	CreatedAt         string `json:"$createdAt"`
	UpdatedAt         string `json:"$updatedAt"`
	Type              string `json:"type"`
	ResourceID        string `json:"resourceId"`
	ResourceType      string `json:"resourceType"`
	SourceSize        int64  `json:"sourceSize"`
	BuildSize         int64  `json:"buildSize"`
	TotalSize         int64  `json:"totalSize"`
	Activate          bool   `json:"activate"`
	Status            string `json:"status"`
	BuildLogs         string `json:"buildLogs"`
	ScreenshotLight   string `json:"screenshotLight"`
	ScreenshotDark    string `json:"screenshotDark"`
	ProviderBranchURL string `json:"providerBranchUrl"`
}

// CreateDeploymentParams ...
type CreateDeploymentParams struct {
	SiteID string
	// Code is a code archive or a directory, which is packaged before the upload.
	Code     string
	Activate bool
	// The build settings are optional, the site's settings are used when empty.
	InstallCommand  string
	BuildCommand    string
	OutputDirectory string
	Ignore          []string
	OnProgress      upload.ProgressFunc
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

// CreateDeployment uploads the site code in chunks and returns the created deployment.
func (s *Service) CreateDeployment(ctx context.Context, params CreateDeploymentParams) (Deployment, error) {
	if params.SiteID == "" {
		return Deployment{}, fmt.Errorf("site ID is empty")
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
	for key, value := range map[string]string{
		"installCommand":  params.InstallCommand,
		"buildCommand":    params.BuildCommand,
		"outputDirectory": params.OutputDirectory,
	} {
		if value != "" {
			body[key] = value
		}
	}

	path := strings.NewReplacer("{siteId}", params.SiteID).Replace(deploymentsPath)
	resp, err := s.uploader.Upload(ctx, upload.Request{
		SourcePath: archive.Path,
		Path:       path,
		FileField:  codeField,
		Params:     body,
		OnProgress: params.OnProgress,
	})
	if err != nil {
		return Deployment{}, fmt.Errorf("create deployment of site %s: %w", params.SiteID, err)
	}

	var deployment Deployment
	if err := resp.Decode(&deployment); err != nil {
		return Deployment{}, err
	}

	s.logger.Donef("Deployment %s created for site %s (%s)",
		deployment.ID, params.SiteID, units.HumanSize(float64(deployment.SourceSize)))
	return deployment, nil
}
