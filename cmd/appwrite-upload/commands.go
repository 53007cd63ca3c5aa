package main

import (
	"fmt"

	"github.com/appwrite/go-cliutils/config"
	"github.com/appwrite/go-cliutils/functions"
	"github.com/appwrite/go-cliutils/sites"
	"github.com/appwrite/go-cliutils/storage"
	"github.com/appwrite/go-cliutils/transport"
	"github.com/appwrite/go-cliutils/upload"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/spf13/cobra"
)

// app holds the services shared by the subcommands, built once the configuration is read.
type app struct {
	envRepo env.Repository
	logger  log.Logger

	functions *functions.Service
	sites     *sites.Service
	storage   *storage.Service
}

func newRootCmd(envRepo env.Repository, logger log.Logger) *cobra.Command {
	a := &app{envRepo: envRepo, logger: logger}

	rootCmd := &cobra.Command{
		Use:   "appwrite-upload",
		Short: "Upload deployments and files to Appwrite in chunks",
		Long: `Upload function deployments, site deployments and storage files to an Appwrite project.

Large files are sent in consecutive chunks. The connection is configured with the
APPWRITE_ENDPOINT, APPWRITE_PROJECT_ID and APPWRITE_API_KEY environment variables.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	rootCmd.AddCommand(a.functionsCmd(), a.sitesCmd(), a.storageCmd())
	return rootCmd
}

func (a *app) setup(_ *cobra.Command, _ []string) error {
	cfg, err := config.NewConfig(a.envRepo)
	if err != nil {
		return err
	}
	a.logger.EnableDebugLog(cfg.Verbose)
	cfg.Print(a.logger)

	client, err := transport.NewClient(cfg.TransportParams(), a.logger)
	if err != nil {
		return err
	}
	uploader := upload.NewUploader(client, cfg.ChunkSize, a.logger)

	a.functions = functions.NewService(uploader, a.logger)
	a.sites = sites.NewService(uploader, a.logger)
	a.storage = storage.NewService(uploader, client, a.logger)
	return nil
}

func (a *app) progressPrinter(name string) upload.ProgressFunc {
	return func(event upload.ProgressEvent) {
		a.logger.Printf("Uploading %s: %.2f%% (%s)", name, event.Progress, units.HumanSize(float64(event.SizeUploaded)))
	}
}

func (a *app) functionsCmd() *cobra.Command {
	var params functions.CreateDeploymentParams

	functionsCmd := &cobra.Command{
		Use:   "functions",
		Short: "Function deployments",
	}

	createDeploymentCmd := &cobra.Command{
		Use:   "create-deployment",
		Short: "Create a function deployment",
		Long: `Upload code as a new deployment of a function.

--code is a code archive or a directory, which is packaged as code.tar.gz.

Example:
  appwrite-upload functions create-deployment --function-id my-function --code ./src --activate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params.OnProgress = a.progressPrinter("deployment")
			deployment, err := a.functions.CreateDeployment(cmd.Context(), params)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), deployment.ID)
			return nil
		},
	}

	flags := createDeploymentCmd.Flags()
	flags.StringVar(&params.FunctionID, "function-id", "", "Function ID (required)")
	flags.StringVar(&params.Code, "code", "", "Code archive or directory (required)")
	flags.BoolVar(&params.Activate, "activate", false, "Activate the deployment once it is built")
	flags.StringVar(&params.Entrypoint, "entrypoint", "", "Entrypoint file")
	flags.StringVar(&params.Commands, "commands", "", "Build commands")
	flags.StringSliceVar(&params.Ignore, "ignore", nil, "Glob patterns excluded from a code directory")
	_ = createDeploymentCmd.MarkFlagRequired("function-id")
	_ = createDeploymentCmd.MarkFlagRequired("code")

	functionsCmd.AddCommand(createDeploymentCmd)
	return functionsCmd
}

func (a *app) sitesCmd() *cobra.Command {
	var params sites.CreateDeploymentParams

	sitesCmd := &cobra.Command{
		Use:   "sites",
		Short: "Site deployments",
	}

	createDeploymentCmd := &cobra.Command{
		Use:   "create-deployment",
		Short: "Create a site deployment",
		Long: `Upload code as a new deployment of a site.

Example:
  appwrite-upload sites create-deployment --site-id my-site --code . --build-command "npm run build" --output-directory ./dist`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params.OnProgress = a.progressPrinter("deployment")
			deployment, err := a.sites.CreateDeployment(cmd.Context(), params)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), deployment.ID)
			return nil
		},
	}

	flags := createDeploymentCmd.Flags()
	flags.StringVar(&params.SiteID, "site-id", "", "Site ID (required)")
	flags.StringVar(&params.Code, "code", "", "Code archive or directory (required)")
	flags.BoolVar(&params.Activate, "activate", false, "Activate the deployment once it is built")
	flags.StringVar(&params.InstallCommand, "install-command", "", "Install command")
	flags.StringVar(&params.BuildCommand, "build-command", "", "Build command")
	flags.StringVar(&params.OutputDirectory, "output-directory", "", "Directory of the built site")
	flags.StringSliceVar(&params.Ignore, "ignore", nil, "Glob patterns excluded from a code directory")
	_ = createDeploymentCmd.MarkFlagRequired("site-id")
	_ = createDeploymentCmd.MarkFlagRequired("code")

	sitesCmd.AddCommand(createDeploymentCmd)
	return sitesCmd
}

func (a *app) storageCmd() *cobra.Command {
	storageCmd := &cobra.Command{
		Use:   "storage",
		Short: "Storage files",
	}

	var createParams storage.CreateFileParams
	createFileCmd := &cobra.Command{
		Use:   "create-file",
		Short: "Upload a file to a bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			createParams.OnProgress = a.progressPrinter(createParams.File)
			file, err := a.storage.CreateFile(cmd.Context(), createParams)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), file.ID)
			return nil
		},
	}
	createFlags := createFileCmd.Flags()
	createFlags.StringVar(&createParams.BucketID, "bucket-id", "", "Bucket ID (required)")
	createFlags.StringVar(&createParams.FileID, "file-id", "", "File ID, generated by the server when empty")
	createFlags.StringVar(&createParams.File, "file", "", "Local file (required)")
	createFlags.StringArrayVar(&createParams.Permissions, "permissions", nil, `Permission strings, e.g. 'read("any")'`)
	_ = createFileCmd.MarkFlagRequired("bucket-id")
	_ = createFileCmd.MarkFlagRequired("file")

	var bucketID, fileID, destination string
	getFileDownloadCmd := &cobra.Command{
		Use:   "get-file-download",
		Short: "Download a file of a bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.storage.GetFileDownload(cmd.Context(), bucketID, fileID, destination)
		},
	}
	downloadFlags := getFileDownloadCmd.Flags()
	downloadFlags.StringVar(&bucketID, "bucket-id", "", "Bucket ID (required)")
	downloadFlags.StringVar(&fileID, "file-id", "", "File ID (required)")
	downloadFlags.StringVarP(&destination, "output", "o", "", "Destination path (required)")
	_ = getFileDownloadCmd.MarkFlagRequired("bucket-id")
	_ = getFileDownloadCmd.MarkFlagRequired("file-id")
	_ = getFileDownloadCmd.MarkFlagRequired("output")

	storageCmd.AddCommand(createFileCmd, getFileDownloadCmd)
	return storageCmd
}
