package store

import (
	"context"
	"time"
)

// Store persists cache manifests. A manifest row is the commit marker of a
// materialized split: artifacts without one are never trusted.
type Store interface {
	Close() error

	GetManifest(ctx context.Context, key string) (Manifest, bool, error)
	PutManifest(ctx context.Context, m Manifest) error
	DeleteManifest(ctx context.Context, key string) error
	ListManifests(ctx context.Context) ([]Manifest, error)
}

// Manifest describes one cached split.
type Manifest struct {
	Key       string
	Scheme    string
	Level     int
	RunID     string
	CreatedAt time.Time
	MaxLength int
	Seed      uint64
	Files     []FileEntry
}

// FileEntry describes one artifact of a split.
type FileEntry struct {
	Subset   string `json:"subset"`
	Name     string `json:"name"`
	Count    int    `json:"count"`
	Checksum uint32 `json:"crc32"`
}

// File returns the entry for subset.
func (m Manifest) File(subset string) (FileEntry, bool) {
	for _, f := range m.Files {
		if f.Subset == subset {
			return f, true
		}
	}
	return FileEntry{}, false
}

// Records returns the total example count across all files.
func (m Manifest) Records() int {
	n := 0
	for _, f := range m.Files {
		n += f.Count
	}
	return n
}
