// Package loader serves materialized splits as fixed-size batches for the
// fit and test stages of training.
package loader

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cognicore/taxoprep/internal/metrics"
	"github.com/cognicore/taxoprep/pkg/taxoprep/artifact"
	"github.com/cognicore/taxoprep/pkg/taxoprep/cache"
	"github.com/cognicore/taxoprep/pkg/taxoprep/internalerr"
	"github.com/cognicore/taxoprep/pkg/taxoprep/labels"
)

// Stage selects which subsets a training step consumes.
type Stage string

const (
	Fit  Stage = "fit"
	Test Stage = "test"
)

// ParseStage converts "fit" or "test" to a Stage.
func ParseStage(s string) (Stage, error) {
	switch Stage(strings.ToLower(strings.TrimSpace(s))) {
	case Fit:
		return Fit, nil
	case Test:
		return Test, nil
	default:
		return "", fmt.Errorf("%q: %w", s, internalerr.ErrInvalidStage)
	}
}

const DefaultBatchSize = 32

// Source provides the subsets of a split.
type Source interface {
	Subset(name cache.Subset) *artifact.Subset
}

// Options configures a Loader.
type Options struct {
	BatchSize int
	Workers   int
	Seed      uint64
	Metrics   *metrics.Metrics
}

// Batch is a contiguous slice of one iteration order.
type Batch struct {
	Index     int
	Subset    cache.Subset
	Positions []int
	InputIDs  [][]int64
	Targets   []labels.Target
}

// Len returns the number of examples in the batch.
func (b Batch) Len() int {
	return len(b.Positions)
}

// Loader builds iterators over a split.
type Loader struct {
	src  Source
	opts Options
}

// New creates a loader over src.
func New(src Source, opts Options) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Loader{src: src, opts: opts}
}

// Iterators returns the iterators of stage: a shuffled train iterator and a
// sequential validation iterator for Fit, a sequential test iterator for Test.
func (l *Loader) Iterators(stage Stage) ([]*Iterator, error) {
	switch stage {
	case Fit:
		return []*Iterator{
			l.iterator(cache.Train, true),
			l.iterator(cache.Valid, false),
		}, nil
	case Test:
		return []*Iterator{l.iterator(cache.Test, false)}, nil
	default:
		return nil, fmt.Errorf("%q: %w", stage, internalerr.ErrInvalidStage)
	}
}

func (l *Loader) iterator(name cache.Subset, shuffle bool) *Iterator {
	it := &Iterator{
		name:      name,
		subset:    l.src.Subset(name),
		batchSize: l.opts.BatchSize,
		workers:   l.opts.Workers,
		shuffle:   shuffle,
		metrics:   l.opts.Metrics,
	}
	if shuffle {
		it.rng = rand.New(rand.NewPCG(l.opts.Seed, l.opts.Seed^0x6a09e667f3bcc909))
	}
	return it
}

// Iterator walks one subset in batches. A shuffled iterator draws a new
// order on every Each call.
type Iterator struct {
	name      cache.Subset
	subset    *artifact.Subset
	batchSize int
	workers   int
	shuffle   bool
	metrics   *metrics.Metrics

	mu  sync.Mutex
	rng *rand.Rand
}

// Name returns the subset the iterator walks.
func (it *Iterator) Name() cache.Subset {
	return it.name
}

// Shuffled reports whether each pass uses a fresh random order.
func (it *Iterator) Shuffled() bool {
	return it.shuffle
}

// Size returns the number of examples.
func (it *Iterator) Size() int {
	return it.subset.Len()
}

// Len returns the number of batches; the last one may be short.
func (it *Iterator) Len() int {
	return (it.Size() + it.batchSize - 1) / it.batchSize
}

// Each assembles batches with a bounded worker pool and calls fn with them
// in order. It stops at the first error from fn or when ctx is done.
func (it *Iterator) Each(ctx context.Context, fn func(Batch) error) error {
	nb := it.Len()
	if nb == 0 {
		return nil
	}
	order := it.order()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(it.workers)

	slots := make([]chan Batch, nb)
	for i := range slots {
		slots[i] = make(chan Batch, 1)
	}
	// At most 2*workers batches are assembled ahead of delivery.
	window := make(chan struct{}, 2*it.workers)

	scheduled := make(chan struct{})
	go func() {
		defer close(scheduled)
		for i := 0; i < nb; i++ {
			select {
			case window <- struct{}{}:
			case <-gctx.Done():
				return
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				slots[i] <- it.assemble(i, order)
				return nil
			})
		}
	}()

	var err error
	for i := 0; i < nb && err == nil; i++ {
		if err = gctx.Err(); err != nil {
			break
		}
		select {
		case b := <-slots[i]:
			<-window
			it.metrics.BatchServed(string(it.name))
			err = fn(b)
		case <-gctx.Done():
			err = gctx.Err()
		}
	}
	cancel()
	<-scheduled
	g.Wait()
	return err
}

func (it *Iterator) order() []int {
	n := it.Size()
	if !it.shuffle {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		return order
	}
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.rng.Perm(n)
}

func (it *Iterator) assemble(i int, order []int) Batch {
	lo := i * it.batchSize
	hi := min(lo+it.batchSize, len(order))
	b := Batch{
		Index:     i,
		Subset:    it.name,
		Positions: order[lo:hi],
		InputIDs:  make([][]int64, 0, hi-lo),
		Targets:   make([]labels.Target, 0, hi-lo),
	}
	for _, pos := range b.Positions {
		ex := it.subset.Examples[pos]
		b.InputIDs = append(b.InputIDs, ex.InputIDs)
		b.Targets = append(b.Targets, ex.Target)
	}
	return b
}
