package storage

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// MockS3Client is a mock implementation of S3Client for testing. It is safe
// for concurrent use and tracks how many PutObject calls are in flight.
type MockS3Client struct {
	mu sync.Mutex

	// Objects stores mock S3 objects keyed by bucket then object key
	Objects map[string]map[string]*MockS3Object
	// Buckets maps bucket names to their region
	Buckets map[string]string

	// Err is returned from every operation when set
	Err error
	// ListErr is returned from ListObjectsV2 when set
	ListErr error
	// PutErrs fails PutObject for specific keys
	PutErrs map[string]error
	// PutDelay holds each PutObject open so concurrency is observable
	PutDelay time.Duration

	// Call counters
	ListBucketsCalls       int
	CreateBucketCalls      int
	ListObjectsV2Calls     int
	PutObjectCalls         int
	GetBucketLocationCalls int

	// PutKeys records uploaded keys in completion order
	PutKeys []string
	// LastPut is the most recent PutObject input
	LastPut *s3.PutObjectInput

	inFlight    int
	MaxInFlight int
}

// MockS3Object represents a mock S3 object with content and metadata
type MockS3Object struct {
	Key          string
	Content      string
	ETag         string
	ContentType  string
	ACL          types.ObjectCannedACL
	CacheControl string
	Metadata     map[string]string
	Size         int64
}

// NewMockS3Client creates a new mock S3 client
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		Objects: make(map[string]map[string]*MockS3Object),
		Buckets: make(map[string]string),
		PutErrs: make(map[string]error),
	}
}

// AddBucket registers an existing bucket.
func (m *MockS3Client) AddBucket(bucket, region string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Buckets[bucket] = region
	if m.Objects[bucket] == nil {
		m.Objects[bucket] = make(map[string]*MockS3Object)
	}
}

// AddObject seeds an object whose ETag is the MD5 of content.
func (m *MockS3Client) AddObject(bucket, key, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Objects[bucket] == nil {
		m.Objects[bucket] = make(map[string]*MockS3Object)
	}
	m.Objects[bucket][key] = &MockS3Object{
		Key:     key,
		Content: content,
		ETag:    fmt.Sprintf("%x", md5.Sum([]byte(content))),
		Size:    int64(len(content)),
	}
}

// Object returns a stored object or nil.
func (m *MockS3Client) Object(bucket, key string) *MockS3Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Objects[bucket][key]
}

// ResetCounters zeroes call counters and recorded puts.
func (m *MockS3Client) ResetCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListBucketsCalls = 0
	m.CreateBucketCalls = 0
	m.ListObjectsV2Calls = 0
	m.PutObjectCalls = 0
	m.GetBucketLocationCalls = 0
	m.PutKeys = nil
	m.LastPut = nil
	m.MaxInFlight = 0
}

// ListBuckets mocks listing buckets
func (m *MockS3Client) ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListBucketsCalls++

	if m.Err != nil {
		return nil, m.Err
	}

	names := make([]string, 0, len(m.Buckets))
	for name := range m.Buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	out := &s3.ListBucketsOutput{}
	for _, name := range names {
		out.Buckets = append(out.Buckets, types.Bucket{Name: aws.String(name)})
	}
	return out, nil
}

// CreateBucket mocks creating a bucket
func (m *MockS3Client) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateBucketCalls++

	if m.Err != nil {
		return nil, m.Err
	}

	bucket := aws.ToString(params.Bucket)
	if _, exists := m.Buckets[bucket]; exists {
		return nil, &types.BucketAlreadyOwnedByYou{}
	}
	region := DefaultRegion
	if params.CreateBucketConfiguration != nil && params.CreateBucketConfiguration.LocationConstraint != "" {
		region = string(params.CreateBucketConfiguration.LocationConstraint)
	}
	m.Buckets[bucket] = region
	if m.Objects[bucket] == nil {
		m.Objects[bucket] = make(map[string]*MockS3Object)
	}

	return &s3.CreateBucketOutput{}, nil
}

// ListObjectsV2 mocks listing objects. Keys are returned in lexical order and
// the continuation token is the index of the next key.
func (m *MockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListObjectsV2Calls++

	if m.Err != nil {
		return nil, m.Err
	}
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	bucket := aws.ToString(params.Bucket)
	if _, exists := m.Buckets[bucket]; !exists {
		return nil, &types.NoSuchBucket{}
	}

	prefix := aws.ToString(params.Prefix)
	var keys []string
	for key := range m.Objects[bucket] {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start := 0
	if token := aws.ToString(params.ContinuationToken); token != "" {
		n, err := strconv.Atoi(token)
		if err != nil || n < 0 || n > len(keys) {
			return nil, fmt.Errorf("invalid continuation token %q", token)
		}
		start = n
	}
	maxKeys := 1000
	if params.MaxKeys != nil && *params.MaxKeys > 0 {
		maxKeys = int(*params.MaxKeys)
	}
	end := start + maxKeys
	if end > len(keys) {
		end = len(keys)
	}

	out := &s3.ListObjectsV2Output{
		KeyCount: aws.Int32(int32(end - start)),
		MaxKeys:  aws.Int32(int32(maxKeys)),
	}
	for _, key := range keys[start:end] {
		obj := m.Objects[bucket][key]
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(obj.Key),
			ETag: aws.String(`"` + obj.ETag + `"`),
			Size: aws.Int64(obj.Size),
		})
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	} else {
		out.IsTruncated = aws.Bool(false)
	}
	return out, nil
}

// PutObject mocks uploading an object
func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	m.PutObjectCalls++
	m.inFlight++
	if m.inFlight > m.MaxInFlight {
		m.MaxInFlight = m.inFlight
	}
	delay := m.PutDelay
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	content := ""
	if params.Body != nil {
		data, err := io.ReadAll(params.Body)
		if err != nil {
			return nil, err
		}
		content = string(data)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	key := aws.ToString(params.Key)
	if err := m.PutErrs[key]; err != nil {
		return nil, err
	}

	bucket := aws.ToString(params.Bucket)
	if _, exists := m.Buckets[bucket]; !exists {
		return nil, &types.NoSuchBucket{}
	}

	etag := fmt.Sprintf("%x", md5.Sum([]byte(content)))
	m.Objects[bucket][key] = &MockS3Object{
		Key:          key,
		Content:      content,
		ETag:         etag,
		ContentType:  aws.ToString(params.ContentType),
		ACL:          params.ACL,
		CacheControl: aws.ToString(params.CacheControl),
		Metadata:     params.Metadata,
		Size:         int64(len(content)),
	}
	m.PutKeys = append(m.PutKeys, key)
	m.LastPut = params

	return &s3.PutObjectOutput{ETag: aws.String(`"` + etag + `"`)}, nil
}

// GetBucketLocation mocks region lookup
func (m *MockS3Client) GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetBucketLocationCalls++

	if m.Err != nil {
		return nil, m.Err
	}

	region, exists := m.Buckets[aws.ToString(params.Bucket)]
	if !exists {
		return nil, &types.NoSuchBucket{}
	}
	if region == DefaultRegion {
		return &s3.GetBucketLocationOutput{}, nil
	}
	return &s3.GetBucketLocationOutput{LocationConstraint: types.BucketLocationConstraint(region)}, nil
}
