package bolt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"litexa.dev/litexa/common"
)

const (
	artifactsBucket  = "artifacts"
	timestampsBucket = "timestamps"
	hashesBucket     = "hashes"
)

// StateStore is the bbolt-backed ArtifactStore and FreshnessCache.
type StateStore struct {
	db     *DB
	logger common.DeployLogger
	now    func() time.Time
}

var (
	_ common.ArtifactStore  = (*StateStore)(nil)
	_ common.FreshnessCache = (*StateStore)(nil)
)

// OpenStateStore opens the state file at path, creating it and its directory
// when needed. A file bbolt cannot read is moved aside to path+".corrupt" and
// the store starts empty.
func OpenStateStore(path string, logger common.DeployLogger) (*StateStore, error) {
	if logger == nil {
		logger = common.DiscardLogger{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := Open(path)
	if err != nil {
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, err
		}
		logger.Warning(fmt.Sprintf("ignoring unreadable deployment state %s: %v", path, err))
		if renameErr := os.Rename(path, path+".corrupt"); renameErr != nil {
			return nil, fmt.Errorf("failed to move unreadable state aside: %w", renameErr)
		}
		if db, err = Open(path); err != nil {
			return nil, err
		}
	}

	if err := db.CreateBuckets(artifactsBucket, timestampsBucket, hashesBucket); err != nil {
		db.Close()
		return nil, err
	}
	return &StateStore{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *StateStore) Close() error {
	return s.db.Close()
}

// Save stores value as JSON under name.
func (s *StateStore) Save(name string, value interface{}) error {
	return s.db.PutJSON(artifactsBucket, name, value)
}

// Get decodes the artifact name into value.
func (s *StateStore) Get(name string, value interface{}) (bool, error) {
	err := s.db.GetJSON(artifactsBucket, name, value)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read artifact %s: %w", name, err)
	}
	return true, nil
}

// Delete removes the artifact name.
func (s *StateStore) Delete(name string) error {
	return s.db.Delete(artifactsBucket, name)
}

// Artifacts returns every stored artifact decoded as generic JSON.
func (s *StateStore) Artifacts() (map[string]interface{}, error) {
	out := make(map[string]interface{})
	err := s.db.ForEach(artifactsBucket, func(k, v []byte) error {
		var value interface{}
		if err := json.Unmarshal(v, &value); err != nil {
			return fmt.Errorf("failed to decode artifact %s: %w", k, err)
		}
		out[string(k)] = value
		return nil
	})
	return out, err
}

// ExportYAML writes every artifact to w as a YAML mapping.
func (s *StateStore) ExportYAML(w io.Writer) error {
	artifacts, err := s.Artifacts()
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(artifacts); err != nil {
		return fmt.Errorf("failed to encode artifacts: %w", err)
	}
	return enc.Close()
}

// IsFresherThan reports whether name was stamped less than minutes ago.
func (s *StateStore) IsFresherThan(name string, minutes int) bool {
	var stamp time.Time
	if err := s.db.GetJSON(timestampsBucket, name, &stamp); err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warning(fmt.Sprintf("ignoring cached timestamp for %s: %v", name, err))
		}
		return false
	}
	return s.now().Sub(stamp) < time.Duration(minutes)*time.Minute
}

// SaveTimestamp stamps name with the current time.
func (s *StateStore) SaveTimestamp(name string) error {
	return s.db.PutJSON(timestampsBucket, name, s.now().UTC())
}

// GetHash returns the cached hash for name.
func (s *StateStore) GetHash(name string) (string, bool) {
	var hash string
	if err := s.db.GetJSON(hashesBucket, name, &hash); err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warning(fmt.Sprintf("ignoring cached hash for %s: %v", name, err))
		}
		return "", false
	}
	return hash, true
}

// StoreHash caches hash for name.
func (s *StateStore) StoreHash(name, hash string) error {
	return s.db.PutJSON(hashesBucket, name, hash)
}
