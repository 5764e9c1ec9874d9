// Package deploy publishes a litexa project's static assets to an S3 bucket.
//
// A deployment run is a sequence of stages, each returning its own result
// that the next stage consumes:
//
//	Discover        local files per language, with default-language fallback
//	ReconcileRemote paginated listing of the bucket prefix, ETag comparison
//	EnsureBucket    list buckets, create only when absent
//	Partition       glob rules split pending uploads into asset sets
//	UploadSets      each set drained in batches of five concurrent uploads
//
// Unchanged files are detected by comparing the local MD5 against the ETag S3
// reports, so a second run against an unchanged tree uploads nothing. Orphaned
// remote objects are never deleted.
//
// Error Handling:
//
//	Every stage returns typed errors from the common package. DeployAssets logs
//	the detailed failure and returns a short UserFacingError wrapping it.
package deploy

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"litexa.dev/litexa/assets"
	"litexa.dev/litexa/common"
	"litexa.dev/litexa/storage"
)

// Artifact names written by an asset deployment.
const (
	ArtifactAssetsRoot = "assets-root"
	ArtifactIcons      = "icons"
)

// AssetHashPrefix namespaces uploaded asset hashes in the freshness cache.
const AssetHashPrefix = "asset:"

// AssetDeployment describes one asset deployment target.
type AssetDeployment struct {
	Project string
	Variant string
	Bucket  string
	// Region is used when the bucket does not exist yet.
	Region string
	// StoreHost builds the public root URL; storage.DefaultStoreHost when empty.
	StoreHost string
	// AssetsRoot overrides the computed public assets root.
	AssetsRoot string
	Rules      []UploadRule
	Languages  map[string]assets.Language

	FillMissingLanguages bool
	UploadWidth          int
}

// BaseLocation is the key prefix every asset is uploaded below.
func (a AssetDeployment) BaseLocation() string {
	return path.Join(a.Project, a.Variant)
}

// Deployer owns the collaborators an asset deployment talks to.
type Deployer struct {
	Client storage.S3Client
	// Large is optional; without it every object goes through PutObject.
	Large     storage.LargeObjectUploader
	Artifacts common.ArtifactStore
	// Cache is optional and only feeds the out-of-band change warning.
	Cache  common.FreshnessCache
	Logger common.DeployLogger
}

// AssetResult is everything an asset deployment computed.
type AssetResult struct {
	RunID         string
	Region        string
	AssetsRoot    string
	Discovery     *assets.Result
	Remote        RemoteState
	BucketCreated bool
	Sets          []*AssetSet
	Uploads       UploadStats
}

// DeployAssets runs a full asset deployment and logs its duration. Any
// failure is logged and returned as a UserFacingError whose cause is the
// typed stage error.
func (d *Deployer) DeployAssets(ctx context.Context, target AssetDeployment) (*AssetResult, error) {
	runID := uuid.NewString()
	logger := d.runLogger(runID)

	var result *AssetResult
	err := common.LogOperation(logger, "assets deployment", func() error {
		var err error
		result, err = d.deployAssets(ctx, logger, target)
		return err
	})
	if result != nil {
		result.RunID = runID
	}
	if err != nil {
		return result, &common.UserFacingError{Message: "failed assets deployment", Cause: err}
	}
	return result, nil
}

func (d *Deployer) deployAssets(ctx context.Context, logger common.DeployLogger, target AssetDeployment) (*AssetResult, error) {
	if err := target.validate(); err != nil {
		return nil, err
	}
	rules, err := CompileRules(target.Rules)
	if err != nil {
		return nil, err
	}

	result := &AssetResult{}
	result.Region, err = d.resolveRegion(ctx, target)
	if err != nil {
		return result, err
	}

	result.AssetsRoot = target.AssetsRoot
	if result.AssetsRoot == "" {
		result.AssetsRoot = fmt.Sprintf("%s/%s/", storage.PublicRootURL(target.StoreHost, result.Region, target.Bucket), target.BaseLocation())
	} else if !strings.HasSuffix(result.AssetsRoot, "/") {
		result.AssetsRoot += "/"
	}
	logger.Verbose(fmt.Sprintf("assets root is %s", result.AssetsRoot))

	result.Discovery, err = assets.Discover(target.Languages, assets.Options{
		BaseLocation:         target.BaseLocation(),
		BaseURL:              result.AssetsRoot,
		FillMissingLanguages: target.FillMissingLanguages,
		Logger:               logger,
	})
	if err != nil {
		return result, err
	}
	logger.Verbose(fmt.Sprintf("discovered %d asset candidates", len(result.Discovery.Candidates)))

	result.Remote, err = ReconcileRemote(ctx, d.Client, target.Bucket, target.BaseLocation()+"/", result.Discovery.ByKey)
	if err != nil {
		return result, err
	}
	logger.Verbose(fmt.Sprintf("listed %d remote objects in %d pages, %d unchanged",
		result.Remote.Listed, result.Remote.Pages, result.Remote.Unchanged))
	d.warnOutOfBandChanges(logger, result.Discovery.Candidates)

	result.BucketCreated, err = storage.EnsureBucket(ctx, d.Client, target.Bucket, result.Region)
	if err != nil {
		return result, &common.RemoteStateError{Op: "ensure bucket", Target: target.Bucket, Err: err}
	}
	if result.BucketCreated {
		logger.Log(fmt.Sprintf("created bucket %s in %s", target.Bucket, result.Region))
	}

	pending := result.Discovery.PendingUploads()
	result.Sets = Partition(pending, rules)
	if len(pending) == 0 {
		logger.Log("no new or modified assets")
	}

	uploader := &Uploader{
		Client: d.Client,
		Bucket: target.Bucket,
		Width:  target.UploadWidth,
		Large:  d.Large,
		Logger: logger,
		OnUploaded: func(c *assets.Candidate) {
			d.storeHash(logger, c)
		},
	}
	result.Uploads, err = uploader.UploadSets(ctx, result.Sets)
	if err != nil {
		return result, err
	}

	for _, c := range result.Discovery.Candidates {
		if !c.NeedsUpload && c.RemoteHash == c.ContentHash {
			d.storeHash(logger, c)
		}
	}

	if err := d.saveArtifacts(result); err != nil {
		return result, err
	}
	logger.Log(fmt.Sprintf("assets deployed to %s", result.AssetsRoot))
	return result, nil
}

func (a AssetDeployment) validate() error {
	if a.Project == "" {
		return common.NewConfigurationError("project", "", "is required")
	}
	if a.Variant == "" {
		return common.NewConfigurationError("variant", "", "is required")
	}
	if err := storage.ValidateBucketName(a.Bucket); err != nil {
		return err
	}
	return storage.ValidatePathName(a.BaseLocation())
}

// resolveRegion asks S3 where the bucket lives. A bucket that does not exist
// yet will be created in the configured region.
func (d *Deployer) resolveRegion(ctx context.Context, target AssetDeployment) (string, error) {
	region, err := storage.BucketRegion(ctx, d.Client, target.Bucket)
	if err == nil {
		return region, nil
	}
	if storage.IsNoSuchBucket(err) {
		if target.Region == "" {
			return storage.DefaultRegion, nil
		}
		return target.Region, nil
	}
	return "", &common.RemoteStateError{Op: "get bucket location", Target: target.Bucket, Err: err}
}

// warnOutOfBandChanges flags objects whose remote hash differs from the local
// file although the last upload recorded the same local hash.
func (d *Deployer) warnOutOfBandChanges(logger common.DeployLogger, candidates []*assets.Candidate) {
	if d.Cache == nil {
		return
	}
	for _, c := range candidates {
		// multipart ETags are not content hashes and never match
		if !c.NeedsUpload || c.IsFirstUpload || strings.Contains(c.RemoteHash, "-") {
			continue
		}
		if cached, ok := d.Cache.GetHash(AssetHashPrefix + c.Key); ok && cached == c.ContentHash {
			logger.Warning(fmt.Sprintf("remote object %s changed outside of deployments, overwriting", c.Key))
		}
	}
}

func (d *Deployer) storeHash(logger common.DeployLogger, c *assets.Candidate) {
	if d.Cache == nil {
		return
	}
	if err := d.Cache.StoreHash(AssetHashPrefix+c.Key, c.ContentHash); err != nil {
		logger.Warning(fmt.Sprintf("failed to cache hash for %s: %v", c.Key, err))
	}
}

func (d *Deployer) saveArtifacts(result *AssetResult) error {
	if d.Artifacts == nil {
		return nil
	}
	if err := d.Artifacts.Save(ArtifactAssetsRoot, result.AssetsRoot); err != nil {
		return fmt.Errorf("failed to save %s artifact: %w", ArtifactAssetsRoot, err)
	}
	if err := d.Artifacts.Save(ArtifactIcons, result.Discovery.Icons); err != nil {
		return fmt.Errorf("failed to save %s artifact: %w", ArtifactIcons, err)
	}
	return nil
}

func (d *Deployer) runLogger(runID string) common.DeployLogger {
	switch l := d.Logger.(type) {
	case nil:
		return common.DiscardLogger{}
	case *common.ChannelLogger:
		return l.WithField("run", runID)
	default:
		return l
	}
}
