// Package config loads the deployment configuration of a litexa project.
//
// Configuration is loaded with the following precedence (later sources
// override earlier ones):
//  1. Default values (set via SetDefaults)
//  2. Configuration file (./litexa.yaml or ~/.litexa/litexa.yaml, or --config)
//  3. .env file in the working directory
//  4. Environment variables with the LITEXA_ prefix
//  5. Values set explicitly by the CLI from command-line flags
//
// # Example
//
//	project: trivia
//	variant: development
//	s3Configuration:
//	  bucketName: trivia-skill-assets
//	uploadParams:
//	  - filter: ["*.mp3"]
//	    params:
//	      CacheControl: max-age=86400
//	  - params:
//	      CacheControl: no-cache
//	roles:
//	  - name: trivia-skill-handler
//	    managedPolicies:
//	      - arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole
//
// # Environment Variables
//
// Nested keys use underscores:
//   - LITEXA_VARIANT=production
//   - LITEXA_AWS_PROFILE=skills
//   - LITEXA_AWS_ENDPOINT=http://localhost:9000
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"litexa.dev/litexa/assets"
	"litexa.dev/litexa/common"
	"litexa.dev/litexa/deploy"
	"litexa.dev/litexa/iam"
	"litexa.dev/litexa/storage"
)

const (
	// EnvPrefix prefixes every environment variable the loader reads.
	EnvPrefix = "LITEXA"

	// DefaultRoleName is reconciled when the configuration names no roles.
	DefaultRoleName = "litexa_handler_lambda"
)

// S3Configuration is the nested bucket configuration block.
type S3Configuration struct {
	BucketName string `mapstructure:"bucketName"`
}

// AWSConfig selects credentials, region and endpoint.
type AWSConfig struct {
	Profile string `mapstructure:"profile"`
	Region  string `mapstructure:"region"`
	// Endpoint points the S3 client at an S3-compatible store
	Endpoint    string `mapstructure:"endpoint"`
	AccessKey   string `mapstructure:"accessKey"`
	SecretKey   string `mapstructure:"secretKey"`
	MaxAttempts int    `mapstructure:"maxAttempts"`
	// StoreHost builds public asset URLs
	StoreHost string `mapstructure:"storeHost"`
}

// Options converts the block into storage.AWSOptions.
func (c AWSConfig) Options() storage.AWSOptions {
	return storage.AWSOptions{
		Profile:     c.Profile,
		Region:      c.Region,
		Endpoint:    c.Endpoint,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		MaxAttempts: c.MaxAttempts,
	}
}

// PathsConfig locates project directories and the local state.
type PathsConfig struct {
	Assets    string `mapstructure:"assets"`
	Languages string `mapstructure:"languages"`
	Converted string `mapstructure:"converted"`
	// State is the directory holding one bbolt state file per variant
	State string `mapstructure:"state"`
}

// RoleConfig is one IAM role to reconcile. The trust policy is given inline
// as a JSON string or read from TrustPolicyFile; with neither the role trusts
// the Lambda service.
type RoleConfig struct {
	Name            string   `mapstructure:"name"`
	Description     string   `mapstructure:"description"`
	TrustPolicy     string   `mapstructure:"trustPolicy"`
	TrustPolicyFile string   `mapstructure:"trustPolicyFile"`
	ManagedPolicies []string `mapstructure:"managedPolicies"`
}

// LoggingConfig controls the CLI logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DiscoveryConfig tunes asset discovery.
type DiscoveryConfig struct {
	// FillMissingLanguages gives languages without their own asset list the
	// default language's files instead of skipping duplication.
	FillMissingLanguages bool `mapstructure:"fillMissingLanguages"`
}

// DeploymentConfig is the complete configuration of one project variant.
type DeploymentConfig struct {
	Project         string              `mapstructure:"project"`
	Variant         string              `mapstructure:"variant"`
	BucketName      string              `mapstructure:"bucketName"`
	S3Configuration S3Configuration     `mapstructure:"s3Configuration"`
	AssetsRoot      string              `mapstructure:"assetsRoot"`
	UploadParams    []deploy.UploadRule `mapstructure:"uploadParams"`
	UploadWidth     int                 `mapstructure:"uploadWidth"`
	AWS             AWSConfig           `mapstructure:"aws"`
	Paths           PathsConfig         `mapstructure:"paths"`
	Roles           []RoleConfig        `mapstructure:"roles"`

	RoleFreshnessMinutes int             `mapstructure:"roleFreshnessMinutes"`
	Readiness            iam.Readiness   `mapstructure:"readiness"`
	Logging              LoggingConfig   `mapstructure:"logging"`
	Discovery            DiscoveryConfig `mapstructure:"discovery"`
}

// Bucket returns the configured bucket, preferring the nested block.
func (c *DeploymentConfig) Bucket() string {
	if c.S3Configuration.BucketName != "" {
		return c.S3Configuration.BucketName
	}
	return c.BucketName
}

// StatePath is the bbolt file for the configured variant.
func (c *DeploymentConfig) StatePath() string {
	return filepath.Join(c.Paths.State, c.Variant+".db")
}

// Layout returns the project asset directories.
func (c *DeploymentConfig) Layout() assets.ProjectLayout {
	return assets.ProjectLayout{
		AssetsDir:    c.Paths.Assets,
		LanguagesDir: c.Paths.Languages,
		ConvertedDir: c.Paths.Converted,
	}
}

// LoggerConfig converts the logging block for common.NewLogger.
func (c *DeploymentConfig) LoggerConfig() common.LoggerConfig {
	cfg := common.DefaultLoggerConfig()
	cfg.Level = common.ParseLogLevel(c.Logging.Level)
	if c.Logging.Format != "" {
		cfg.Format = c.Logging.Format
	}
	return cfg
}

// AssetDeployment builds the asset deployment target from the configuration
// and the scanned project languages.
func (c *DeploymentConfig) AssetDeployment(languages map[string]assets.Language) deploy.AssetDeployment {
	return deploy.AssetDeployment{
		Project:              c.Project,
		Variant:              c.Variant,
		Bucket:               c.Bucket(),
		Region:               c.AWS.Region,
		StoreHost:            c.AWS.StoreHost,
		AssetsRoot:           c.AssetsRoot,
		Rules:                c.UploadParams,
		Languages:            languages,
		FillMissingLanguages: c.Discovery.FillMissingLanguages,
		UploadWidth:          c.UploadWidth,
	}
}

// RoleDescriptors resolves the configured roles into desired role states.
// Without configured roles the default Lambda handler role is returned.
func (c *DeploymentConfig) RoleDescriptors() ([]iam.RoleDescriptor, error) {
	if len(c.Roles) == 0 {
		return []iam.RoleDescriptor{iam.DefaultLambdaRole(DefaultRoleName)}, nil
	}
	roles := make([]iam.RoleDescriptor, 0, len(c.Roles))
	for _, rc := range c.Roles {
		desired := iam.DefaultLambdaRole(rc.Name)
		if rc.Description != "" {
			desired.Description = rc.Description
		}
		switch {
		case rc.TrustPolicy != "":
			desired.TrustPolicy = rc.TrustPolicy
		case rc.TrustPolicyFile != "":
			data, err := os.ReadFile(rc.TrustPolicyFile)
			if err != nil {
				return nil, common.NewConfigurationError("trustPolicyFile", rc.TrustPolicyFile, err.Error())
			}
			desired.TrustPolicy = string(data)
		}
		if rc.ManagedPolicies != nil {
			desired.ManagedPolicies = append([]string(nil), rc.ManagedPolicies...)
		}
		roles = append(roles, desired)
	}
	return roles, nil
}

// Loader provides configuration loading functionality.
type Loader struct {
	v      *viper.Viper
	prefix string
}

// NewLoader creates a new configuration loader with the given environment prefix.
func NewLoader(envPrefix string) *Loader {
	return &Loader{
		v:      viper.New(),
		prefix: envPrefix,
	}
}

// SetDefaults sets default configuration values.
// This should be called before Load().
func (l *Loader) SetDefaults(defaults map[string]interface{}) {
	for key, value := range defaults {
		l.v.SetDefault(key, value)
	}
}

// SetDeploymentDefaults sets the standard litexa defaults.
func (l *Loader) SetDeploymentDefaults() {
	l.v.SetDefault("variant", "development")

	l.v.SetDefault("aws.maxAttempts", storage.DefaultMaxAttempts)
	l.v.SetDefault("aws.storeHost", storage.DefaultStoreHost)

	l.v.SetDefault("paths.assets", "litexa/assets")
	l.v.SetDefault("paths.languages", "litexa/languages")
	l.v.SetDefault("paths.converted", ".deploy/converted-assets")
	l.v.SetDefault("paths.state", ".deploy")

	l.v.SetDefault("uploadWidth", deploy.DefaultUploadWidth)
	l.v.SetDefault("roleFreshnessMinutes", iam.DefaultFreshnessMinutes)
	l.v.SetDefault("readiness.initialDelay", iam.DefaultInitialDelay.String())
	l.v.SetDefault("readiness.interval", iam.DefaultPollInterval.String())
	l.v.SetDefault("readiness.maxAttempts", iam.DefaultReadinessAttempts)

	l.v.SetDefault("logging.level", "info")
	l.v.SetDefault("logging.format", "text")

	l.v.SetDefault("discovery.fillMissingLanguages", false)
}

// Set overrides key with value, taking precedence over every other source.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// ConfigFileUsed reports the config file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load reads configuration from file, .env, and environment variables.
// If cfgFile is empty, searches for litexa.yaml in standard locations.
func (l *Loader) Load(cfgFile string, target interface{}) error {
	if cfgFile != "" {
		l.v.SetConfigFile(cfgFile)
	} else {
		l.v.SetConfigName("litexa")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		l.v.AddConfigPath("$HOME/.litexa")
	}

	if err := l.v.ReadInConfig(); err != nil {
		// Only a searched-for file may be absent; an explicit one must exist.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	used := l.v.ConfigFileUsed()

	l.v.SetConfigFile(".env")
	l.v.SetConfigType("env")
	_ = l.v.MergeInConfig() // Ignore if .env doesn't exist
	l.v.SetConfigFile(used)

	if l.prefix != "" {
		l.v.SetEnvPrefix(l.prefix)
	}
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if err := l.v.Unmarshal(target); err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}

	return nil
}

// LoadDeploymentConfig loads, expands and validates the configuration. The
// loader is returned so the caller can report the file used.
func LoadDeploymentConfig(loader *Loader, cfgFile string) (*DeploymentConfig, error) {
	cfg := &DeploymentConfig{}
	if err := loader.Load(cfgFile, cfg); err != nil {
		return nil, err
	}
	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandPaths replaces a leading ~ in every path with the home directory.
func (c *DeploymentConfig) ExpandPaths() error {
	paths := []*string{
		&c.Paths.Assets,
		&c.Paths.Languages,
		&c.Paths.Converted,
		&c.Paths.State,
	}
	for i := range c.Roles {
		paths = append(paths, &c.Roles[i].TrustPolicyFile)
	}
	for _, p := range paths {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %s: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the values every command needs.
func (c *DeploymentConfig) Validate() error {
	if c.Project == "" {
		return common.NewConfigurationError("project", "", "is required")
	}
	if c.Variant == "" {
		return common.NewConfigurationError("variant", "", "is required")
	}
	if err := storage.ValidatePathName(c.Project + "/" + c.Variant); err != nil {
		return err
	}
	if c.Readiness.MaxAttempts < 0 {
		return common.NewConfigurationError("readiness.maxAttempts", fmt.Sprint(c.Readiness.MaxAttempts), "must not be negative")
	}
	if c.Readiness.Interval < 0 || c.Readiness.InitialDelay < 0 {
		return common.NewConfigurationError("readiness", "", "durations must not be negative")
	}
	return nil
}

// ValidateAssets checks the values an asset deployment needs.
func (c *DeploymentConfig) ValidateAssets() error {
	if c.Bucket() == "" {
		return common.NewConfigurationError("s3Configuration.bucketName", "", "is required for asset deployment")
	}
	if err := storage.ValidateBucketName(c.Bucket()); err != nil {
		return err
	}
	_, err := deploy.CompileRules(c.UploadParams)
	return err
}

// ReadinessPolicy returns the readiness policy with a zero poll interval
// replaced by the default so polling never spins.
func (c *DeploymentConfig) ReadinessPolicy() iam.Readiness {
	r := c.Readiness
	if r.Interval == 0 {
		r.Interval = iam.DefaultPollInterval
	}
	return r
}
