// Package labels encodes category paths into supervision targets under the
// flat, per-level and hierarchical section schemes.
//
// Section targets are partial: a path only visits some decision points, and
// sections it never reaches are absent from the target rather than class 0.
package labels

import (
	"fmt"

	"github.com/cognicore/taxoprep/pkg/taxoprep/internalerr"
	"github.com/cognicore/taxoprep/pkg/taxoprep/taxonomy"
)

// Decision is the local choice made at one section.
type Decision struct {
	Section int
	Local   int
}

// Target is the encoded supervision for one record. Class is set for Flat
// and Level; Decisions is set for Section, in path order.
type Target struct {
	Scheme    Scheme
	Class     int
	Decisions []Decision
}

// AsMap returns the section-id to local-index mapping of a Section target.
func (t Target) AsMap() map[int]int {
	m := make(map[int]int, len(t.Decisions))
	for _, d := range t.Decisions {
		m[d.Section] = d.Local
	}
	return m
}

// Validate checks every index in t against the bounds in idx.
func (t Target) Validate(idx *taxonomy.Index, level int) error {
	switch t.Scheme {
	case Flat:
		return checkClass(t.Class, idx.LevelCount(idx.Depth()-1))
	case Level:
		return checkClass(t.Class, idx.LevelCount(level))
	case Section:
		for _, d := range t.Decisions {
			s, ok := idx.Section(d.Section)
			if !ok {
				return fmt.Errorf("section %d: %w", d.Section, internalerr.ErrIndexOutOfRange)
			}
			if err := checkClass(d.Local, len(s.Members)); err != nil {
				return fmt.Errorf("section %d: %w", d.Section, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%v: %w", t.Scheme, internalerr.ErrInvalidScheme)
	}
}

func checkClass(class, count int) error {
	if class < 0 || class >= count {
		return fmt.Errorf("class %d not in [0,%d): %w", class, count, internalerr.ErrIndexOutOfRange)
	}
	return nil
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithSkipSingletons drops section decisions whose section has one member.
// Without it only a single-member root section is left out.
func WithSkipSingletons() Option {
	return func(e *Encoder) { e.skipSingletons = true }
}

// Encoder maps paths to targets using a built index. It only reads the
// index and is safe for concurrent use.
type Encoder struct {
	idx            *taxonomy.Index
	skipSingletons bool
}

// NewEncoder creates an encoder over idx.
func NewEncoder(idx *taxonomy.Index, opts ...Option) *Encoder {
	e := &Encoder{idx: idx}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Index returns the taxonomy index the encoder reads.
func (e *Encoder) Index() *taxonomy.Index {
	return e.idx
}

// Encode produces the target for path under scheme. level is only read by Level.
func (e *Encoder) Encode(path taxonomy.Path, scheme Scheme, level int) (Target, error) {
	switch scheme {
	case Flat:
		return e.encodeFlat(path)
	case Level:
		return e.encodeLevel(path, level)
	case Section:
		return e.encodeSection(path)
	default:
		return Target{}, fmt.Errorf("%v: %w", scheme, internalerr.ErrInvalidScheme)
	}
}

func (e *Encoder) encodeFlat(path taxonomy.Path) (Target, error) {
	deepest := e.idx.Depth() - 1
	leaf := path.Leaf()
	class, ok := e.idx.LevelIndex(deepest, leaf)
	if !ok {
		return Target{}, fmt.Errorf("leaf %q at depth %d: %w", leaf, deepest, internalerr.ErrUnknownCategory)
	}
	return Target{Scheme: Flat, Class: class}, nil
}

func (e *Encoder) encodeLevel(path taxonomy.Path, level int) (Target, error) {
	if level < 0 || level >= len(path) || level >= e.idx.Depth() {
		return Target{}, fmt.Errorf("level %d of %d-segment path: %w", level, len(path), internalerr.ErrIndexOutOfRange)
	}
	class, ok := e.idx.LevelIndex(level, path[level])
	if !ok {
		return Target{}, fmt.Errorf("%q at depth %d: %w", path[level], level, internalerr.ErrUnknownCategory)
	}
	return Target{Scheme: Level, Class: class}, nil
}

func (e *Encoder) encodeSection(path taxonomy.Path) (Target, error) {
	decisions := make([]Decision, 0, len(path))
	for depth := range path {
		id, local, err := e.idx.SectionOf(path, depth)
		if err != nil {
			return Target{}, err
		}
		size := e.idx.SectionSize(id)
		// A taxonomy with one top-level category has no root decision.
		if depth == 0 && size == 1 {
			continue
		}
		if e.skipSingletons && size == 1 {
			continue
		}
		decisions = append(decisions, Decision{Section: id, Local: local})
	}
	return Target{Scheme: Section, Decisions: decisions}, nil
}

// Classes returns the number of output classes for Flat and Level.
// For Section it returns the number of sections; see SectionSizes.
func (e *Encoder) Classes(scheme Scheme, level int) (int, error) {
	switch scheme {
	case Flat:
		return e.idx.LevelCount(e.idx.Depth() - 1), nil
	case Level:
		if level < 0 || level >= e.idx.Depth() {
			return 0, fmt.Errorf("level %d of depth %d: %w", level, e.idx.Depth(), internalerr.ErrIndexOutOfRange)
		}
		return e.idx.LevelCount(level), nil
	case Section:
		return e.idx.NumSections(), nil
	default:
		return 0, fmt.Errorf("%v: %w", scheme, internalerr.ErrInvalidScheme)
	}
}

// SectionSizes returns the member count of every section, indexed by id.
func (e *Encoder) SectionSizes() []int {
	sections := e.idx.Sections()
	sizes := make([]int, len(sections))
	for i, s := range sections {
		sizes[i] = len(s.Members)
	}
	return sizes
}
