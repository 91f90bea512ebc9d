// Package taxonomy builds the integer lookup tables of a category taxonomy:
// a dense per-depth index over node names, and per-parent sections whose
// member order defines the local index used by hierarchical supervision.
//
// The tables are flat (name and path-key maps plus ordered member lists)
// rather than a linked tree, and are immutable once built.
package taxonomy

import (
	"fmt"

	"github.com/cognicore/taxoprep/pkg/taxoprep/internalerr"
)

// Section is one decision point: the children of a single parent path.
// The virtual root's section has an empty Parent and always takes the last id.
type Section struct {
	ID      int      `yaml:"id"`
	Depth   int      `yaml:"depth"`
	Parent  Path     `yaml:"parent,omitempty,flow"`
	Members []string `yaml:"members"`
}

// Index holds the level and section tables for a dataset.
type Index struct {
	levels    [][]string
	levelIdx  []map[string]int
	sections  []Section
	byParent  map[string]int
	memberPos []map[string]int
}

// Builder accumulates paths in input order.
type Builder struct {
	idx *Index
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{idx: &Index{byParent: make(map[string]int)}}
}

// Add registers every node of path. Names are assigned the next free level
// index on first sight; sections are created the first time their parent is seen.
func (b *Builder) Add(path Path) error {
	if len(path) == 0 {
		return internalerr.ErrMalformedPath
	}
	idx := b.idx
	for depth, name := range path {
		if depth == len(idx.levels) {
			idx.levels = append(idx.levels, nil)
			idx.levelIdx = append(idx.levelIdx, make(map[string]int))
		}
		if _, ok := idx.levelIdx[depth][name]; !ok {
			idx.levelIdx[depth][name] = len(idx.levels[depth])
			idx.levels[depth] = append(idx.levels[depth], name)
		}

		parent := path.Key(depth - 1)
		id, ok := idx.byParent[parent]
		if !ok {
			id = len(idx.sections)
			idx.byParent[parent] = id
			idx.sections = append(idx.sections, Section{ID: id, Depth: depth, Parent: append(Path(nil), path.Prefix(depth-1)...)})
			idx.memberPos = append(idx.memberPos, make(map[string]int))
		}
		if _, ok := idx.memberPos[id][name]; !ok {
			idx.memberPos[id][name] = len(idx.sections[id].Members)
			idx.sections[id].Members = append(idx.sections[id].Members, name)
		}
	}
	return nil
}

// Index returns the built index. The builder must not be used afterwards.
//
// The root section is created by the first Add but is renumbered last, so
// sections under real parents are numbered from 0 in first-seen order.
func (b *Builder) Index() *Index {
	idx := b.idx
	b.idx = nil
	n := len(idx.sections)
	if n < 2 {
		return idx
	}
	sections := make([]Section, 0, n)
	memberPos := make([]map[string]int, 0, n)
	sections = append(sections, idx.sections[1:]...)
	sections = append(sections, idx.sections[0])
	memberPos = append(memberPos, idx.memberPos[1:]...)
	memberPos = append(memberPos, idx.memberPos[0])
	for i := range sections {
		sections[i].ID = i
		idx.byParent[sections[i].Parent.Key(len(sections[i].Parent)-1)] = i
	}
	idx.sections, idx.memberPos = sections, memberPos
	return idx
}

// Build parses every label and indexes it in input order. The first
// malformed label aborts the build and is reported with its row.
func Build(labels []string, delimiter string) (*Index, error) {
	b := NewBuilder()
	for row, label := range labels {
		path, err := ParsePath(label, delimiter)
		if err != nil {
			return nil, internalerr.AtRow(row, label, err)
		}
		if err := b.Add(path); err != nil {
			return nil, internalerr.AtRow(row, label, err)
		}
	}
	return b.Index(), nil
}

// Depth returns the number of levels in the taxonomy.
func (x *Index) Depth() int {
	return len(x.levels)
}

// LevelCount returns how many distinct names appear at depth.
func (x *Index) LevelCount(depth int) int {
	if depth < 0 || depth >= len(x.levels) {
		return 0
	}
	return len(x.levels[depth])
}

// LevelNames returns the names at depth in index order.
func (x *Index) LevelNames(depth int) []string {
	if depth < 0 || depth >= len(x.levels) {
		return nil
	}
	out := make([]string, len(x.levels[depth]))
	copy(out, x.levels[depth])
	return out
}

// LevelIndex looks up name at depth.
func (x *Index) LevelIndex(depth int, name string) (int, bool) {
	if depth < 0 || depth >= len(x.levelIdx) {
		return 0, false
	}
	i, ok := x.levelIdx[depth][name]
	return i, ok
}

// NumSections returns the number of decision points.
func (x *Index) NumSections() int {
	return len(x.sections)
}

// Section returns the section with the given id.
func (x *Index) Section(id int) (Section, bool) {
	if id < 0 || id >= len(x.sections) {
		return Section{}, false
	}
	s := x.sections[id]
	s.Parent = append(Path(nil), s.Parent...)
	s.Members = append([]string(nil), s.Members...)
	return s, true
}

// SectionSize returns the member count of section id, or 0 if there is none.
func (x *Index) SectionSize(id int) int {
	if id < 0 || id >= len(x.sections) {
		return 0
	}
	return len(x.sections[id].Members)
}

// RootSection returns the id of the section holding the top-level categories.
func (x *Index) RootSection() (int, bool) {
	id, ok := x.byParent[""]
	return id, ok
}

// Sections returns every section ordered by id.
func (x *Index) Sections() []Section {
	out := make([]Section, len(x.sections))
	for i := range x.sections {
		out[i], _ = x.Section(i)
	}
	return out
}

// SectionOf resolves the section in which the node at depth of path is a candidate,
// and the node's local index within it.
func (x *Index) SectionOf(path Path, depth int) (id, local int, err error) {
	if depth < 0 || depth >= len(path) {
		return 0, 0, fmt.Errorf("depth %d of %d-segment path: %w", depth, len(path), internalerr.ErrIndexOutOfRange)
	}
	id, ok := x.byParent[path.Key(depth-1)]
	if !ok {
		return 0, 0, fmt.Errorf("no section under %q: %w", path.Prefix(depth-1), internalerr.ErrUnknownCategory)
	}
	local, ok = x.memberPos[id][path[depth]]
	if !ok {
		return 0, 0, fmt.Errorf("%q not a member of section %d: %w", path[depth], id, internalerr.ErrUnknownCategory)
	}
	return id, local, nil
}

// LocalIndex returns the position of the node at depth of path within its section.
func (x *Index) LocalIndex(path Path, depth int) (int, error) {
	_, local, err := x.SectionOf(path, depth)
	return local, err
}
