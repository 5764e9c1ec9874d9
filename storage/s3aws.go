package storage

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const (
	// DefaultRegion is used when neither the profile nor the configuration names one.
	DefaultRegion = "us-east-1"

	// DefaultStoreHost is the host used to build public asset URLs.
	DefaultStoreHost = "s3.amazonaws.com"

	// DefaultMaxAttempts bounds SDK-level retries for throttled requests.
	DefaultMaxAttempts = 10
)

// AWSOptions selects credentials, region and endpoint for SDK clients.
type AWSOptions struct {
	Profile     string
	Region      string
	Endpoint    string // S3-compatible endpoint override; enables path-style addressing
	AccessKey   string // static credentials, mostly for S3-compatible test stores
	SecretKey   string
	MaxAttempts int
}

// LoadAWSConfig resolves an aws.Config from the shared config files, the
// selected profile and any static credentials.
func LoadAWSConfig(ctx context.Context, opts AWSOptions) (aws.Config, error) {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRetryer(func() aws.Retryer {
			return retry.AddWithMaxAttempts(retry.NewStandard(), maxAttempts)
		}),
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	return cfg, nil
}

// NewS3Client builds an S3 client from an aws.Config.
func NewS3Client(cfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true // required for MinIO
		}
	})
}

// CalculateMD5 returns the hex MD5 digest of the file at path. S3 reports the
// same digest as the ETag of objects uploaded in a single part.
func CalculateMD5(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to hash file %s: %w", path, err)
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// UnquoteETag strips the quoting layer S3 wraps around ETag values.
func UnquoteETag(etag string) string {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}

// PublicRootURL builds the public REST root for a bucket.
func PublicRootURL(host, region, bucket string) string {
	if host == "" {
		host = DefaultStoreHost
	}
	return fmt.Sprintf("https://%s/%s/%s", host, region, bucket)
}

// BucketRegion reports the region of an existing bucket. An empty location
// constraint means us-east-1.
func BucketRegion(ctx context.Context, client S3Client, bucket string) (string, error) {
	out, err := client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return "", err
	}
	if out.LocationConstraint == "" {
		return DefaultRegion, nil
	}
	return string(out.LocationConstraint), nil
}

// IsNoSuchBucket reports whether err says the bucket does not exist.
func IsNoSuchBucket(err error) bool {
	var noBucket *types.NoSuchBucket
	if errors.As(err, &noBucket) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucket"
}

// BucketExists lists all buckets and reports whether bucket is among them.
func BucketExists(ctx context.Context, client S3Client, bucket string) (bool, error) {
	out, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return false, err
	}
	for _, b := range out.Buckets {
		if aws.ToString(b.Name) == bucket {
			return true, nil
		}
	}
	return false, nil
}

// EnsureBucket creates bucket in region unless it is already listed. It
// returns true when a bucket was created.
func EnsureBucket(ctx context.Context, client S3Client, bucket, region string) (bool, error) {
	exists, err := BucketExists(ctx, client, bucket)
	if err != nil {
		return false, fmt.Errorf("failed to list buckets: %w", err)
	}
	if exists {
		return false, nil
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if region != "" && region != DefaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	if _, err := client.CreateBucket(ctx, input); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "BucketAlreadyOwnedByYou" {
			return false, nil
		}
		return false, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return true, nil
}

// LargeObjectUploader uploads objects too large for a single PutObject.
type LargeObjectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput) error
}

// ManagerUploader adapts the SDK multipart upload manager to LargeObjectUploader.
type ManagerUploader struct {
	uploader *manager.Uploader
}

// NewManagerUploader wraps client in a multipart upload manager.
func NewManagerUploader(client *s3.Client) *ManagerUploader {
	return &ManagerUploader{uploader: manager.NewUploader(client)}
}

// Upload implements LargeObjectUploader.
func (m *ManagerUploader) Upload(ctx context.Context, input *s3.PutObjectInput) error {
	_, err := m.uploader.Upload(ctx, input)
	return err
}
