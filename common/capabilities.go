package common

// ArtifactStore persists named deployment outputs (public asset root, icon
// metadata, role ARNs) within a run and between runs.
type ArtifactStore interface {
	Save(name string, value interface{}) error
	// Get decodes the artifact into value and reports whether it existed.
	Get(name string, value interface{}) (bool, error)
	Delete(name string) error
}

// FreshnessCache records when something was last reconciled and the last
// content hash seen for it.
type FreshnessCache interface {
	IsFresherThan(name string, minutes int) bool
	SaveTimestamp(name string) error
	GetHash(name string) (string, bool)
	StoreHash(name, hash string) error
}
