// Package cli provides the litexa command-line interface.
//
// Command Structure:
//
//	litexa [flags]
//	  ├── deploy          assets, then roles
//	  │   ├── assets      sync local assets to the S3 bucket
//	  │   └── role        converge IAM roles
//	  ├── artifacts       print the stored deployment artifacts
//	  │   └── rm NAME     forget a stored artifact
//	  └── version         build and dependency information
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags
//  2. Environment variables (LITEXA_ prefix)
//  3. .env file
//  4. Configuration file values (litexa.yaml)
//  5. Default values
//
// Every command that touches AWS obtains its clients from newClients, which
// tests replace with in-memory mocks.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"litexa.dev/litexa/common"
	"litexa.dev/litexa/config"
	"litexa.dev/litexa/iam"
	"litexa.dev/litexa/storage"
)

// RootCmd is the command main executes.
var RootCmd = NewRootCmd()

// rootOptions holds the persistent flag values of one command tree.
type rootOptions struct {
	cfgFile   string
	variant   string
	logLevel  string
	logFormat string
}

// NewRootCmd builds a fresh command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "litexa",
		Short: "deploy litexa skill assets and IAM roles to AWS",
		Long: `Litexa Deployment

Publishes a litexa skill project's assets to S3 and converges the IAM roles
its handler runs as:
- assets are diffed against the bucket by MD5/ETag and only changes upload
- uploads are partitioned by glob rules carrying per-set object parameters
- roles get the desired trust policy and exactly the desired managed policies

Configuration is read from litexa.yaml, a .env file, LITEXA_* environment
variables and command-line flags.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is ./litexa.yaml or $HOME/.litexa/litexa.yaml)")
	cmd.PersistentFlags().StringVar(&opts.variant, "variant", "", "deployment variant, e.g. development or production")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format: text or json")

	cmd.AddCommand(
		newDeployCmd(opts),
		newArtifactsCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig reads the configuration with flag overrides applied and points
// the global logger at the command's output streams.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.DeploymentConfig, error) {
	loader := config.NewLoader(config.EnvPrefix)
	loader.SetDeploymentDefaults()

	flags := cmd.Flags()
	if flags.Changed("variant") {
		loader.Set("variant", o.variant)
	}
	if flags.Changed("log-level") {
		loader.Set("logging.level", o.logLevel)
	}
	if flags.Changed("log-format") {
		loader.Set("logging.format", o.logFormat)
	}

	cfg, err := config.LoadDeploymentConfig(loader, o.cfgFile)
	if err != nil {
		return nil, err
	}

	common.Configure(common.Logger, cfg.LoggerConfig())
	common.Logger.SetOutput(&common.OutputSplitter{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()})
	if used := loader.ConfigFileUsed(); used != "" {
		common.Logger.Debugf("using config file %s", used)
	}
	return cfg, nil
}

// clients are the AWS service handles a command talks to.
type clients struct {
	S3    storage.S3Client
	Large storage.LargeObjectUploader
	IAM   iam.IAMClient
}

var newClients = func(ctx context.Context, cfg *config.DeploymentConfig) (*clients, error) {
	awsCfg, err := storage.LoadAWSConfig(ctx, cfg.AWS.Options())
	if err != nil {
		return nil, err
	}
	s3Client := storage.NewS3Client(awsCfg, cfg.AWS.Endpoint)
	return &clients{
		S3:    s3Client,
		Large: storage.NewManagerUploader(s3Client),
		IAM:   iam.NewIAMClient(awsCfg),
	}, nil
}
