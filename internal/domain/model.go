// Package domain defines core entities and value objects for cmdai.
//
// The domain layer is independent of infrastructure concerns; everything here
// is plain data plus the small behaviors that belong to it.
package domain

import "time"

// ModelSpec identifies a local model artifact the embedded backend runs.
// URL and Checksum drive fetch and verification through the model cache.
type ModelSpec struct {
	ID        string `yaml:"id"`
	URL       string `yaml:"url"`
	Checksum  string `yaml:"checksum"`
	SizeBytes int64  `yaml:"size_bytes"`
}

// CachedModel is the manifest view of one stored artifact.
type CachedModel struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	Checksum   string    `json:"checksum"`
	LastAccess time.Time `json:"last_accessed"`
	Readers    int       `json:"-"`
}

// CacheStats summarizes store usage for doctor and the cache subcommands.
type CacheStats struct {
	Dir        string
	Entries    int
	TotalBytes int64
	MaxBytes   int64
	Pinned     int
}
