// Package cache persists materialized splits as three artifact files plus a
// manifest row, keyed by label scheme and level.
//
// The manifest row is written last and is the commit marker: a split is only
// loadable when its row exists and every file it names verifies.
package cache

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/taxoprep/pkg/taxoprep/artifact"
	"github.com/cognicore/taxoprep/pkg/taxoprep/internalerr"
	"github.com/cognicore/taxoprep/pkg/taxoprep/labels"
	"github.com/cognicore/taxoprep/pkg/taxoprep/store"
)

// Subset names one of the three partitions.
type Subset string

const (
	Train Subset = "train"
	Valid Subset = "valid"
	Test  Subset = "test"
)

// Subsets lists the partitions in file order.
var Subsets = []Subset{Train, Valid, Test}

// Key identifies a cached split.
type Key struct {
	Scheme labels.Scheme
	Level  int
	// SkipSingletons marks section splits encoded without one-member
	// sections; their targets differ from the default encoding.
	SkipSingletons bool
}

// NewKey builds a key. The level only distinguishes Level splits and the
// singleton policy only distinguishes Section splits; other schemes ignore
// them.
func NewKey(scheme labels.Scheme, level int, skipSingletons bool) Key {
	if scheme != labels.Level {
		level = labels.AllLevels
	}
	if scheme != labels.Section {
		skipSingletons = false
	}
	return Key{Scheme: scheme, Level: level, SkipSingletons: skipSingletons}
}

// LevelName returns the level component of the key.
func (k Key) LevelName() string {
	if k.Level == labels.AllLevels {
		return "all"
	}
	return strconv.Itoa(k.Level)
}

func (k Key) String() string {
	if k.SkipSingletons {
		return fmt.Sprintf("%s_nosingle_level_%s", k.Scheme, k.LevelName())
	}
	return fmt.Sprintf("%s_level_%s", k.Scheme, k.LevelName())
}

// FileName returns the artifact file name of subset.
func (k Key) FileName(s Subset) string {
	return fmt.Sprintf("%s_%s_set%s", k, s, artifact.Extension)
}

// Entry is a complete cached split.
type Entry struct {
	Key       Key
	RunID     string
	CreatedAt time.Time
	MaxLength int
	Seed      uint64
	Train     *artifact.Subset
	Valid     *artifact.Subset
	Test      *artifact.Subset
}

// Subset returns the partition named s.
func (e *Entry) Subset(s Subset) *artifact.Subset {
	switch s {
	case Train:
		return e.Train
	case Valid:
		return e.Valid
	case Test:
		return e.Test
	}
	return nil
}

func (e *Entry) setSubset(s Subset, v *artifact.Subset) {
	switch s {
	case Train:
		e.Train = v
	case Valid:
		e.Valid = v
	case Test:
		e.Test = v
	}
}

// Cache reads and writes entries under one directory.
type Cache struct {
	dir    string
	store  store.Store
	logger *slog.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New creates a cache over dir, recording manifests in st.
func New(dir string, st store.Store) *Cache {
	return &Cache{
		dir:     dir,
		store:   st,
		logger:  slog.Default().With("component", "cache"),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Dir returns the artifact directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Load returns the entry for key. A missing manifest is ErrCacheMiss; a
// manifest whose files are absent or fail verification is ErrCacheInvalid.
func (c *Cache) Load(ctx context.Context, key Key) (*Entry, error) {
	m, ok, err := c.store.GetManifest(ctx, key.String())
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", key, internalerr.ErrCacheMiss, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, internalerr.ErrCacheMiss)
	}

	e := &Entry{
		Key:       key,
		RunID:     m.RunID,
		CreatedAt: m.CreatedAt,
		MaxLength: m.MaxLength,
		Seed:      m.Seed,
	}
	for _, s := range Subsets {
		f, ok := m.File(string(s))
		if !ok {
			return nil, fmt.Errorf("%s: manifest has no %s file: %w", key, s, internalerr.ErrCacheInvalid)
		}
		sub, info, err := artifact.ReadFile(filepath.Join(c.dir, f.Name))
		if err != nil {
			if errors.Is(err, internalerr.ErrCacheInvalid) {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			return nil, fmt.Errorf("%s: %w: %v", key, internalerr.ErrCacheInvalid, err)
		}
		if info.Checksum != f.Checksum || info.Count != f.Count {
			return nil, fmt.Errorf("%s: %s file is %d records/%08x, manifest says %d/%08x: %w",
				key, s, info.Count, info.Checksum, f.Count, f.Checksum, internalerr.ErrCacheInvalid)
		}
		if sub.Scheme != key.Scheme || sub.Level != key.Level || sub.MaxLength != m.MaxLength {
			return nil, fmt.Errorf("%s: %s file header does not match manifest: %w", key, s, internalerr.ErrCacheInvalid)
		}
		e.setSubset(s, sub)
	}

	c.logger.Info("cache hit",
		"key", key.String(),
		"run_id", m.RunID,
		"train", e.Train.Len(),
		"valid", e.Valid.Len(),
		"test", e.Test.Len(),
	)
	return e, nil
}

// Save writes the three artifacts and then commits the manifest row. Any
// previous manifest for the key is removed first so a failed save leaves a miss.
func (c *Cache) Save(ctx context.Context, e *Entry) (store.Manifest, error) {
	for _, s := range Subsets {
		sub := e.Subset(s)
		if sub == nil {
			return store.Manifest{}, fmt.Errorf("%s: missing %s subset", e.Key, s)
		}
		if sub.Scheme != e.Key.Scheme || sub.Level != e.Key.Level || sub.MaxLength != e.MaxLength {
			return store.Manifest{}, fmt.Errorf("%s: %s subset is %v/%d/%d", e.Key, s, sub.Scheme, sub.Level, sub.MaxLength)
		}
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return store.Manifest{}, fmt.Errorf("creating cache directory: %w", err)
	}
	if err := c.store.DeleteManifest(ctx, e.Key.String()); err != nil {
		return store.Manifest{}, fmt.Errorf("clearing manifest %s: %w", e.Key, err)
	}

	start := time.Now()
	m := store.Manifest{
		Key:       e.Key.String(),
		Scheme:    e.Key.Scheme.String(),
		Level:     e.Key.Level,
		RunID:     c.newRunID(),
		CreatedAt: time.Now().UTC(),
		MaxLength: e.MaxLength,
		Seed:      e.Seed,
	}
	for _, s := range Subsets {
		name := e.Key.FileName(s)
		info, err := artifact.WriteFile(filepath.Join(c.dir, name), e.Subset(s))
		if err != nil {
			return store.Manifest{}, fmt.Errorf("%s: writing %s: %w", e.Key, s, err)
		}
		m.Files = append(m.Files, store.FileEntry{
			Subset:   string(s),
			Name:     name,
			Count:    info.Count,
			Checksum: info.Checksum,
		})
	}
	if err := c.store.PutManifest(ctx, m); err != nil {
		return store.Manifest{}, fmt.Errorf("committing manifest %s: %w", e.Key, err)
	}

	e.RunID = m.RunID
	e.CreatedAt = m.CreatedAt
	c.logger.Info("cache saved",
		"key", m.Key,
		"run_id", m.RunID,
		"records", m.Records(),
		"duration", time.Since(start),
	)
	return m, nil
}

// Invalidate removes the manifest row and the artifacts of key.
func (c *Cache) Invalidate(ctx context.Context, key Key) error {
	if err := c.store.DeleteManifest(ctx, key.String()); err != nil {
		return fmt.Errorf("deleting manifest %s: %w", key, err)
	}
	for _, s := range Subsets {
		err := os.Remove(filepath.Join(c.dir, key.FileName(s)))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing %s artifact: %w", s, err)
		}
	}
	c.logger.Info("cache invalidated", "key", key.String())
	return nil
}

func (c *Cache) newRunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ulid.MustNew(ulid.Now(), c.entropy).String()
}
