package deploy

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"litexa.dev/litexa/assets"
	"litexa.dev/litexa/common"
	"litexa.dev/litexa/storage"
)

func TestReconcileRemote_Pagination(t *testing.T) {
	client := storage.NewMockS3Client()
	client.AddBucket("assets-bucket", "us-east-1")
	for i := 0; i < 2500; i++ {
		client.AddObject("assets-bucket", fmt.Sprintf("proj/dev/default/%04d.png", i), fmt.Sprintf("content %d", i))
	}
	// outside the prefix, never listed
	client.AddObject("assets-bucket", "other/dev/default/0000.png", "content 0")

	dir := t.TempDir()
	unchanged := newCandidate(t, dir, "0007.png", "content 7")
	changed := newCandidate(t, dir, "2499.png", "edited locally")
	fresh := newCandidate(t, dir, "9999.png", "brand new")
	byKey := map[string]*assets.Candidate{
		unchanged.Key: unchanged,
		changed.Key:   changed,
		fresh.Key:     fresh,
	}

	state, err := ReconcileRemote(context.Background(), client, "assets-bucket", "proj/dev/", byKey)
	require.NoError(t, err)

	assert.Equal(t, 3, client.ListObjectsV2Calls)
	assert.Equal(t, 3, state.Pages)
	assert.Equal(t, 2500, state.Listed)
	assert.Equal(t, 2, state.Matched)
	assert.Equal(t, 1, state.Unchanged)
	assert.False(t, state.BucketMissing)

	assert.False(t, unchanged.NeedsUpload)
	assert.False(t, unchanged.IsFirstUpload)
	assert.Equal(t, unchanged.ContentHash, unchanged.RemoteHash)

	assert.True(t, changed.NeedsUpload)
	assert.False(t, changed.IsFirstUpload)
	assert.NotEmpty(t, changed.RemoteHash)

	assert.True(t, fresh.NeedsUpload)
	assert.True(t, fresh.IsFirstUpload)
	assert.Empty(t, fresh.RemoteHash)
}

func TestReconcileRemote_MissingBucket(t *testing.T) {
	client := storage.NewMockS3Client()
	c := newCandidate(t, t.TempDir(), "a.png", "a")

	state, err := ReconcileRemote(context.Background(), client, "not-there", "proj/dev/",
		map[string]*assets.Candidate{c.Key: c})
	require.NoError(t, err)
	assert.True(t, state.BucketMissing)
	assert.Zero(t, state.Pages)
	assert.True(t, c.NeedsUpload)
	assert.True(t, c.IsFirstUpload)
}

func TestReconcileRemote_ListFailure(t *testing.T) {
	client := storage.NewMockS3Client()
	client.AddBucket("assets-bucket", "us-east-1")
	client.ListErr = errors.New("access denied")

	_, err := ReconcileRemote(context.Background(), client, "assets-bucket", "proj/dev/", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrRemoteState))
	assert.Contains(t, err.Error(), "s3://assets-bucket/proj/dev/")
}
