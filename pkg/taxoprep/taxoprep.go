// Package taxoprep turns hierarchically labeled text records into fixed-length
// token ids and encoded targets, split deterministically into train,
// validation and test subsets and cached per label scheme.
package taxoprep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cognicore/taxoprep/internal/metrics"
	"github.com/cognicore/taxoprep/internal/notify"
	"github.com/cognicore/taxoprep/pkg/taxoprep/artifact"
	"github.com/cognicore/taxoprep/pkg/taxoprep/cache"
	"github.com/cognicore/taxoprep/pkg/taxoprep/dataset"
	"github.com/cognicore/taxoprep/pkg/taxoprep/internalerr"
	"github.com/cognicore/taxoprep/pkg/taxoprep/labels"
	"github.com/cognicore/taxoprep/pkg/taxoprep/split"
	"github.com/cognicore/taxoprep/pkg/taxoprep/taxonomy"
)

// DefaultExtraLength is added to the longest raw text when sizing sequences.
const DefaultExtraLength = 5

const chunkSize = 256

// TextCleaner normalizes raw text before tokenization.
type TextCleaner interface {
	Clean(text string) string
}

// Tokenizer converts text to exactly maxLength ids.
type Tokenizer interface {
	Encode(text string, maxLength int) []int64
}

// Options configures a Preprocessor
type Options struct {
	Dataset   *dataset.Dataset
	Delimiter string
	Cleaner   TextCleaner
	Tokenizer Tokenizer

	// Cache is optional; without it every Materialize recomputes.
	Cache *cache.Cache

	Seed           uint64
	ExtraLength    int
	Workers        int
	SkipSingletons bool

	// HierarchyPath, when set, receives the taxonomy tables once they are built.
	HierarchyPath string

	Metrics  *metrics.Metrics
	Notifier notify.Notifier
}

// Split is a materialized dataset partition for one scheme and level.
type Split struct {
	Key       cache.Key
	RunID     string
	MaxLength int
	Seed      uint64
	Train     *artifact.Subset
	Valid     *artifact.Subset
	Test      *artifact.Subset
	Cached    bool
}

// Subset returns the partition named s.
func (s *Split) Subset(name cache.Subset) *artifact.Subset {
	switch name {
	case cache.Train:
		return s.Train
	case cache.Valid:
		return s.Valid
	case cache.Test:
		return s.Test
	}
	return nil
}

// Preprocessor materializes splits of one dataset.
type Preprocessor struct {
	ds             *dataset.Dataset
	delimiter      string
	cleaner        TextCleaner
	tok            Tokenizer
	cache          *cache.Cache
	seed           uint64
	extraLength    int
	workers        int
	skipSingletons bool
	hierarchyPath  string
	metrics        *metrics.Metrics
	notifier       notify.Notifier
	logger         *slog.Logger

	indexOnce sync.Once
	idx       *taxonomy.Index
	paths     []taxonomy.Path
	indexErr  error
}

// New creates a Preprocessor with the given dependencies
func New(opts Options) (*Preprocessor, error) {
	if opts.Dataset == nil {
		return nil, fmt.Errorf("%w: no dataset", internalerr.ErrInvalidConfig)
	}
	if opts.Cleaner == nil || opts.Tokenizer == nil {
		return nil, fmt.Errorf("%w: cleaner and tokenizer are required", internalerr.ErrInvalidConfig)
	}
	p := &Preprocessor{
		ds:             opts.Dataset,
		delimiter:      opts.Delimiter,
		cleaner:        opts.Cleaner,
		tok:            opts.Tokenizer,
		cache:          opts.Cache,
		seed:           opts.Seed,
		extraLength:    opts.ExtraLength,
		workers:        opts.Workers,
		skipSingletons: opts.SkipSingletons,
		hierarchyPath:  opts.HierarchyPath,
		metrics:        opts.Metrics,
		notifier:       opts.Notifier,
		logger:         slog.Default().With("component", "preprocessor"),
	}
	if p.delimiter == "" {
		p.delimiter = taxonomy.DefaultDelimiter
	}
	if p.extraLength <= 0 {
		p.extraLength = DefaultExtraLength
	}
	if p.workers <= 0 {
		p.workers = 1
	}
	if p.notifier == nil {
		p.notifier = notify.Nop{}
	}
	return p, nil
}

// Index builds the taxonomy index on first use, from every record in input order.
func (p *Preprocessor) Index() (*taxonomy.Index, error) {
	p.indexOnce.Do(func() {
		start := time.Now()
		b := taxonomy.NewBuilder()
		paths := make([]taxonomy.Path, p.ds.Len())
		for row, r := range p.ds.Records {
			path, err := taxonomy.ParsePath(r.Category, p.delimiter)
			if err == nil {
				err = b.Add(path)
			}
			if err != nil {
				p.indexErr = internalerr.AtRow(row, r.Category, err)
				return
			}
			paths[row] = path
		}
		idx := b.Index()

		if p.hierarchyPath != "" {
			if err := os.MkdirAll(filepath.Dir(p.hierarchyPath), 0755); err != nil {
				p.indexErr = fmt.Errorf("creating hierarchy directory: %w", err)
				return
			}
			if err := idx.SaveHierarchy(p.hierarchyPath); err != nil {
				p.indexErr = fmt.Errorf("writing hierarchy file: %w", err)
				return
			}
		}

		p.idx, p.paths = idx, paths
		p.logger.Info("taxonomy indexed",
			"records", len(paths),
			"depth", idx.Depth(),
			"sections", idx.NumSections(),
			"duration", time.Since(start),
		)
	})
	return p.idx, p.indexErr
}

// Encoder returns a label encoder over the dataset's index.
func (p *Preprocessor) Encoder() (*labels.Encoder, error) {
	idx, err := p.Index()
	if err != nil {
		return nil, err
	}
	var opts []labels.Option
	if p.skipSingletons {
		opts = append(opts, labels.WithSkipSingletons())
	}
	return labels.NewEncoder(idx, opts...), nil
}

// MaxLength is the longest raw text in words plus the extra length.
func (p *Preprocessor) MaxLength() int {
	return p.ds.MaxWords() + p.extraLength
}

// Key returns the cache key of the split for scheme and level under this
// preprocessor's encoding options.
func (p *Preprocessor) Key(scheme labels.Scheme, level int) cache.Key {
	return cache.NewKey(scheme, level, p.skipSingletons)
}

// Materialize returns the split for scheme and level, loading it from the
// cache when a valid entry exists and computing and caching it otherwise.
// An entry written with another seed or max length is recomputed.
func (p *Preprocessor) Materialize(ctx context.Context, scheme labels.Scheme, level int) (*Split, error) {
	start := time.Now()
	if !scheme.Valid() {
		return nil, fmt.Errorf("%v: %w", scheme, internalerr.ErrInvalidScheme)
	}
	key := p.Key(scheme, level)

	if p.cache != nil {
		entry, err := p.cache.Load(ctx, key)
		if err == nil && (entry.Seed != p.seed || entry.MaxLength != p.MaxLength()) {
			err = fmt.Errorf("%s: cached with seed %d and max length %d, want %d and %d: %w",
				key, entry.Seed, entry.MaxLength, p.seed, p.MaxLength(), internalerr.ErrCacheInvalid)
		}
		switch {
		case err == nil:
			p.metrics.CacheLookup("hit")
			s := &Split{
				Key:       key,
				RunID:     entry.RunID,
				MaxLength: entry.MaxLength,
				Seed:      entry.Seed,
				Train:     entry.Train,
				Valid:     entry.Valid,
				Test:      entry.Test,
				Cached:    true,
			}
			p.finish(ctx, s, "hit", start)
			return s, nil
		case errors.Is(err, internalerr.ErrCacheInvalid):
			p.metrics.CacheLookup("invalid")
			p.logger.Warn("cached split invalid, recomputing", "key", key.String(), "error", err)
		default:
			p.metrics.CacheLookup("miss")
			p.logger.Info("cache miss", "key", key.String())
		}
	}

	examples, err := p.Tensorize(ctx, scheme, key.Level)
	if err != nil {
		return nil, err
	}

	maxLength := p.MaxLength()
	part := split.TwoStage(len(examples), p.seed)
	subset := func(positions []int) *artifact.Subset {
		return &artifact.Subset{
			Scheme:    scheme,
			Level:     key.Level,
			MaxLength: maxLength,
			Examples:  split.Select(examples, positions),
		}
	}
	s := &Split{
		Key:       key,
		MaxLength: maxLength,
		Seed:      p.seed,
		Train:     subset(part.Train),
		Valid:     subset(part.Valid),
		Test:      subset(part.Test),
	}

	if p.cache != nil {
		e := &cache.Entry{
			Key:       key,
			MaxLength: maxLength,
			Seed:      p.seed,
			Train:     s.Train,
			Valid:     s.Valid,
			Test:      s.Test,
		}
		if _, err := p.cache.Save(ctx, e); err != nil {
			return nil, fmt.Errorf("caching %s: %w", key, err)
		}
		s.RunID = e.RunID
	}

	p.finish(ctx, s, "miss", start)
	return s, nil
}

func (p *Preprocessor) finish(ctx context.Context, s *Split, status string, start time.Time) {
	p.metrics.SplitSizes(s.Key.String(), s.Train.Len(), s.Valid.Len(), s.Test.Len())
	p.metrics.Materialized(status, time.Since(start))
	p.logger.Info("split ready",
		"key", s.Key.String(),
		"cached", s.Cached,
		"train", s.Train.Len(),
		"valid", s.Valid.Len(),
		"test", s.Test.Len(),
		"max_length", s.MaxLength,
		"duration", time.Since(start),
	)

	dir := ""
	if p.cache != nil {
		dir = p.cache.Dir()
	}
	err := p.notifier.Notify(ctx, notify.Event{
		Key:       s.Key.String(),
		Scheme:    s.Key.Scheme.String(),
		Level:     s.Key.Level,
		RunID:     s.RunID,
		Dir:       dir,
		MaxLength: s.MaxLength,
		Train:     s.Train.Len(),
		Valid:     s.Valid.Len(),
		Test:      s.Test.Len(),
		Cached:    s.Cached,
		At:        time.Now().UTC(),
	})
	if err != nil {
		p.logger.Warn("split notification failed", "key", s.Key.String(), "error", err)
	}
}

// Tensorize cleans, tokenizes and encodes every record. Results are in input
// order; the first failing record aborts the run.
func (p *Preprocessor) Tensorize(ctx context.Context, scheme labels.Scheme, level int) ([]artifact.Example, error) {
	enc, err := p.Encoder()
	if err != nil {
		return nil, err
	}
	if scheme == labels.Level {
		if _, err := enc.Classes(scheme, level); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	maxLength := p.MaxLength()
	records := p.ds.Records
	examples := make([]artifact.Example, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for lo := 0; lo < len(records); lo += chunkSize {
		hi := min(lo+chunkSize, len(records))
		g.Go(func() error {
			for row := lo; row < hi; row++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				target, err := enc.Encode(p.paths[row], scheme, level)
				if err != nil {
					p.metrics.RecordError(scheme.String())
					return internalerr.AtRow(row, records[row].Category, err)
				}
				text := p.cleaner.Clean(records[row].Text)
				examples[row] = artifact.Example{
					InputIDs: p.tok.Encode(text, maxLength),
					Target:   target,
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.metrics.RecordsEncoded(scheme.String(), len(examples))
	p.logger.Info("records tensorized",
		"scheme", scheme.String(),
		"records", len(examples),
		"max_length", maxLength,
		"duration", time.Since(start),
	)
	return examples, nil
}
