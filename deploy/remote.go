package deploy

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"litexa.dev/litexa/assets"
	"litexa.dev/litexa/common"
	"litexa.dev/litexa/storage"
)

// ListPageSize is the number of keys requested per ListObjectsV2 page.
const ListPageSize = 1000

// RemoteState summarizes one remote listing pass.
type RemoteState struct {
	Pages     int
	Listed    int
	Matched   int
	Unchanged int
	// BucketMissing is set when the bucket did not exist at listing time.
	BucketMissing bool
}

// ReconcileRemote lists every object under prefix and marks each candidate in
// byKey with the remote hash. A candidate whose remote hash equals its content
// hash no longer needs upload. Objects without a matching candidate are left
// alone. Pages are followed with the continuation token until the listing is
// no longer truncated.
func ReconcileRemote(ctx context.Context, client storage.S3Client, bucket, prefix string, byKey map[string]*assets.Candidate) (RemoteState, error) {
	var state RemoteState
	var token *string

	for {
		out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			MaxKeys:           aws.Int32(ListPageSize),
			ContinuationToken: token,
		})
		if err != nil {
			if state.Pages == 0 && storage.IsNoSuchBucket(err) {
				state.BucketMissing = true
				return state, nil
			}
			return state, &common.RemoteStateError{
				Op:     "list objects",
				Target: fmt.Sprintf("s3://%s/%s", bucket, prefix),
				Err:    err,
			}
		}
		state.Pages++

		for _, obj := range out.Contents {
			state.Listed++
			candidate, ok := byKey[aws.ToString(obj.Key)]
			if !ok {
				continue
			}
			state.Matched++
			candidate.RemoteHash = storage.UnquoteETag(aws.ToString(obj.ETag))
			candidate.IsFirstUpload = false
			candidate.NeedsUpload = candidate.RemoteHash != candidate.ContentHash
			if !candidate.NeedsUpload {
				state.Unchanged++
			}
		}

		if !aws.ToBool(out.IsTruncated) || aws.ToString(out.NextContinuationToken) == "" {
			return state, nil
		}
		token = out.NextContinuationToken
	}
}
