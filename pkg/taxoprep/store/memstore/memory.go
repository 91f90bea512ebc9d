package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/cognicore/taxoprep/pkg/taxoprep/store"
)

// Store is an in-memory implementation of store.Store for tests.
type Store struct {
	mu        sync.RWMutex
	manifests map[string]store.Manifest
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{manifests: make(map[string]store.Manifest)}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// GetManifest returns a copy of the manifest for key.
func (s *Store) GetManifest(ctx context.Context, key string) (store.Manifest, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.manifests[key]
	if !ok {
		return store.Manifest{}, false, nil
	}
	return copyManifest(m), true, nil
}

// PutManifest inserts or replaces a manifest.
func (s *Store) PutManifest(ctx context.Context, m store.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.manifests[m.Key] = copyManifest(m)
	return nil
}

// DeleteManifest removes a manifest if present.
func (s *Store) DeleteManifest(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.manifests, key)
	return nil
}

// ListManifests returns every manifest ordered by key.
func (s *Store) ListManifests(ctx context.Context) ([]store.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Manifest, 0, len(s.manifests))
	for _, m := range s.manifests {
		out = append(out, copyManifest(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func copyManifest(m store.Manifest) store.Manifest {
	m.Files = append([]store.FileEntry(nil), m.Files...)
	return m
}
