package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCalculateMD5 tests MD5 hash calculation
func TestCalculateMD5(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name        string
		content     string
		expectedMD5 string
	}{
		{
			name:        "SimpleText",
			content:     "Hello, World!",
			expectedMD5: "65a8e27d8879283831b664bd8b7f0ad4",
		},
		{
			name:        "EmptyFile",
			content:     "",
			expectedMD5: "d41d8cd98f00b204e9800998ecf8427e",
		},
		{
			name:        "LargerContent",
			content:     "The quick brown fox jumps over the lazy dog",
			expectedMD5: "9e107d9d372bb6826bd81d3542a419d6",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filePath := filepath.Join(tmpDir, tt.name+".txt")
			err := os.WriteFile(filePath, []byte(tt.content), 0644)
			require.NoError(t, err)

			md5hash, err := CalculateMD5(filePath)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedMD5, md5hash)
		})
	}
}

// TestCalculateMD5_NonExistentFile tests error handling
func TestCalculateMD5_NonExistentFile(t *testing.T) {
	_, err := CalculateMD5("/nonexistent/file.txt")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open file")
}

func TestUnquoteETag(t *testing.T) {
	assert.Equal(t, "abc123", UnquoteETag(`"abc123"`))
	assert.Equal(t, "abc123", UnquoteETag(`abc123`))
	assert.Equal(t, "abc123", UnquoteETag(` W/"abc123" `))
	assert.Equal(t, "", UnquoteETag(`""`))
}

func TestPublicRootURL(t *testing.T) {
	assert.Equal(t, "https://s3.amazonaws.com/eu-west-1/assets", PublicRootURL("", "eu-west-1", "assets"))
	assert.Equal(t, "https://store.local/us-east-1/b", PublicRootURL("store.local", "us-east-1", "b"))
}

func TestEnsureBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesMissingBucket", func(t *testing.T) {
		client := NewMockS3Client()
		created, err := EnsureBucket(ctx, client, "assets-bucket", "eu-west-1")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, 1, client.ListBucketsCalls)
		assert.Equal(t, 1, client.CreateBucketCalls)
		assert.Equal(t, "eu-west-1", client.Buckets["assets-bucket"])
	})

	t.Run("SkipsExistingBucket", func(t *testing.T) {
		client := NewMockS3Client()
		client.AddBucket("assets-bucket", DefaultRegion)
		created, err := EnsureBucket(ctx, client, "assets-bucket", DefaultRegion)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, 0, client.CreateBucketCalls)
	})

	t.Run("ListFailure", func(t *testing.T) {
		client := NewMockS3Client()
		client.Err = assert.AnError
		_, err := EnsureBucket(ctx, client, "assets-bucket", DefaultRegion)
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestBucketRegion(t *testing.T) {
	ctx := context.Background()
	client := NewMockS3Client()
	client.AddBucket("east", DefaultRegion)
	client.AddBucket("west", "us-west-2")

	region, err := BucketRegion(ctx, client, "east")
	require.NoError(t, err)
	assert.Equal(t, DefaultRegion, region)

	region, err = BucketRegion(ctx, client, "west")
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", region)

	_, err = BucketRegion(ctx, client, "missing")
	assert.Error(t, err)
}

func TestMockS3Client_ListObjectsV2Pagination(t *testing.T) {
	ctx := context.Background()
	client := NewMockS3Client()
	client.AddBucket("b", DefaultRegion)
	client.AddObject("b", "p/1", "one")
	client.AddObject("b", "p/2", "two")
	client.AddObject("b", "p/3", "three")
	client.AddObject("b", "other/4", "four")

	first, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String("b"),
		Prefix:  aws.String("p/"),
		MaxKeys: aws.Int32(2),
	})
	require.NoError(t, err)
	assert.Len(t, first.Contents, 2)
	assert.True(t, aws.ToBool(first.IsTruncated))
	assert.True(t, strings.HasPrefix(aws.ToString(first.Contents[0].ETag), `"`))

	second, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:            aws.String("b"),
		Prefix:            aws.String("p/"),
		MaxKeys:           aws.Int32(2),
		ContinuationToken: first.NextContinuationToken,
	})
	require.NoError(t, err)
	assert.Len(t, second.Contents, 1)
	assert.False(t, aws.ToBool(second.IsTruncated))
	assert.Equal(t, "p/3", aws.ToString(second.Contents[0].Key))
}
