package deploy

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"litexa.dev/litexa/assets"
	"litexa.dev/litexa/common"
	"litexa.dev/litexa/storage"
)

const (
	// DefaultUploadWidth is the number of uploads in flight per batch.
	DefaultUploadWidth = 5

	// MatchAll marks a rule as the default params for unmatched assets.
	MatchAll = "*"

	// DefaultLargeObjectThreshold routes bigger files through the multipart uploader.
	DefaultLargeObjectThreshold int64 = 16 << 20
)

// UploadRule is one configured upload-params entry.
type UploadRule struct {
	Filter []string               `mapstructure:"filter" yaml:"filter,omitempty"`
	Params map[string]interface{} `mapstructure:"params" yaml:"params,omitempty"`
}

// CompiledRule is an UploadRule with validated patterns and decoded params.
type CompiledRule struct {
	Name     string
	Patterns []string
	Params   ObjectParams
	Default  bool
}

// AssetSet is a group of candidates uploaded with the same params.
type AssetSet struct {
	Name    string
	Params  ObjectParams
	Members []*assets.Candidate
}

// CompileRules validates every rule up front so configuration mistakes are
// reported before any network call.
func CompileRules(rules []UploadRule) ([]CompiledRule, error) {
	compiled := make([]CompiledRule, 0, len(rules))
	for i, rule := range rules {
		params, err := ParseObjectParams(rule.Params)
		if err != nil {
			return nil, fmt.Errorf("upload rule %d: %w", i+1, err)
		}
		c := CompiledRule{Name: fmt.Sprintf("rule-%d", i+1), Params: params}
		if len(rule.Filter) == 0 {
			c.Default = true
		}
		for _, pattern := range rule.Filter {
			if pattern == MatchAll {
				c.Default = true
				continue
			}
			if !doublestar.ValidatePattern(pattern) {
				return nil, fmt.Errorf("upload rule %d: %w", i+1,
					common.NewConfigurationError("filter", pattern, "is not a valid glob pattern"))
			}
			c.Patterns = append(c.Patterns, pattern)
		}
		if !c.Default {
			c.Name = strings.Join(c.Patterns, ",")
		}
		compiled = append(compiled, c)
	}
	return compiled, nil
}

// Matches reports whether the candidate's file name or base name matches one
// of the rule's patterns.
func (r CompiledRule) Matches(name string) bool {
	base := path.Base(name)
	for _, pattern := range r.Patterns {
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// Partition splits pending into asset sets. Rules are applied in order and a
// candidate is claimed by the first rule that matches it. Match-all rules only
// supply params for the final set of unclaimed candidates.
func Partition(pending []*assets.Candidate, rules []CompiledRule) []*AssetSet {
	if len(rules) == 0 {
		if len(pending) == 0 {
			return nil
		}
		return []*AssetSet{{Name: "default", Members: append([]*assets.Candidate(nil), pending...)}}
	}

	var defaults ObjectParams
	haveDefaults := false
	remaining := append([]*assets.Candidate(nil), pending...)
	var sets []*AssetSet

	for _, rule := range rules {
		if rule.Default {
			if !haveDefaults {
				defaults = rule.Params
				haveDefaults = true
			}
			continue
		}

		set := &AssetSet{Name: rule.Name, Params: rule.Params}
		kept := remaining[:0:0]
		for _, c := range remaining {
			if rule.Matches(c.Name) {
				set.Members = append(set.Members, c)
			} else {
				kept = append(kept, c)
			}
		}
		remaining = kept
		if len(set.Members) > 0 {
			sets = append(sets, set)
		}
	}

	if len(remaining) > 0 {
		sets = append(sets, &AssetSet{Name: "default", Params: defaults, Members: remaining})
	}
	return sets
}

// UploadStats counts what an upload pass did.
type UploadStats struct {
	Objects int
	Bytes   int64
	Batches int
}

func (s *UploadStats) add(other UploadStats) {
	s.Objects += other.Objects
	s.Bytes += other.Bytes
	s.Batches += other.Batches
}

// Uploader drains asset sets into a bucket.
type Uploader struct {
	Client storage.S3Client
	Bucket string
	// Width caps uploads in flight; DefaultUploadWidth when zero.
	Width int
	// Large handles files above LargeThreshold when set.
	Large          storage.LargeObjectUploader
	LargeThreshold int64
	Logger         common.DeployLogger
	// OnUploaded runs after each confirmed upload.
	OnUploaded func(c *assets.Candidate)
}

// UploadSets drains each set in order. The first failing set stops the run.
func (u *Uploader) UploadSets(ctx context.Context, sets []*AssetSet) (UploadStats, error) {
	var total UploadStats
	for _, set := range sets {
		stats, err := u.UploadSet(ctx, set)
		total.add(stats)
		if err != nil {
			return total, err
		}
		u.logger().Log(fmt.Sprintf("uploaded %d objects (%s) for asset set %s",
			stats.Objects, humanize.Bytes(uint64(stats.Bytes)), set.Name))
	}
	return total, nil
}

// UploadSet uploads the members of set in batches of Width. Each batch is
// fully settled before the next starts; any failure aborts the set.
func (u *Uploader) UploadSet(ctx context.Context, set *AssetSet) (UploadStats, error) {
	width := u.Width
	if width <= 0 {
		width = DefaultUploadWidth
	}

	var stats UploadStats
	queue := append([]*assets.Candidate(nil), set.Members...)
	for len(queue) > 0 {
		n := width
		if n > len(queue) {
			n = len(queue)
		}
		batch := queue[:n]
		queue = queue[n:]

		var mu sync.Mutex
		var batchStats UploadStats
		g, gctx := errgroup.WithContext(ctx)
		for _, c := range batch {
			g.Go(func() error {
				if err := u.uploadOne(gctx, set.Params, c); err != nil {
					return err
				}
				mu.Lock()
				batchStats.Objects++
				batchStats.Bytes += c.Size
				mu.Unlock()
				return nil
			})
		}
		err := g.Wait()
		batchStats.Batches = 1
		stats.add(batchStats)
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (u *Uploader) uploadOne(ctx context.Context, params ObjectParams, c *assets.Candidate) error {
	file, err := os.Open(c.SourcePath)
	if err != nil {
		return &common.UploadError{Key: c.Key, Err: err}
	}
	defer file.Close()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(u.Bucket),
		Key:           aws.String(c.Key),
		Body:          file,
		ContentLength: aws.Int64(c.Size),
	}
	params.Apply(input)
	input.ContentType = aws.String(ContentType(c.Name))
	input.ACL = DefaultACL

	threshold := u.LargeThreshold
	if threshold <= 0 {
		threshold = DefaultLargeObjectThreshold
	}
	if u.Large != nil && c.Size > threshold {
		err = u.Large.Upload(ctx, input)
	} else {
		_, err = u.Client.PutObject(ctx, input)
	}
	if err != nil {
		return &common.UploadError{Key: c.Key, Err: err}
	}

	c.NeedsUpload = false
	u.logger().Verbose(fmt.Sprintf("uploaded %s [%s]", c.Key, c.ShortHash()))
	if u.OnUploaded != nil {
		u.OnUploaded(c)
	}
	return nil
}

func (u *Uploader) logger() common.DeployLogger {
	if u.Logger == nil {
		return common.DiscardLogger{}
	}
	return u.Logger
}
