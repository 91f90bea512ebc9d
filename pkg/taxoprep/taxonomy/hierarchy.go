package taxonomy

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// hierarchyFile is the on-disk form of an Index. Lists keep every ordering.
type hierarchyFile struct {
	Levels   [][]string `yaml:"levels"`
	Sections []Section  `yaml:"sections"`
}

// WriteHierarchy encodes the index tables as YAML.
func (x *Index) WriteHierarchy(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(hierarchyFile{Levels: x.levels, Sections: x.sections}); err != nil {
		return fmt.Errorf("encode hierarchy: %w", err)
	}
	return enc.Close()
}

// SaveHierarchy writes the hierarchy file to path.
func (x *Index) SaveHierarchy(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := x.WriteHierarchy(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadHierarchy rebuilds an Index from YAML written by WriteHierarchy.
func ReadHierarchy(r io.Reader) (*Index, error) {
	var hf hierarchyFile
	if err := yaml.NewDecoder(r).Decode(&hf); err != nil {
		return nil, fmt.Errorf("decode hierarchy: %w", err)
	}

	x := &Index{byParent: make(map[string]int)}
	for depth, names := range hf.Levels {
		m := make(map[string]int, len(names))
		for i, name := range names {
			if _, dup := m[name]; dup {
				return nil, fmt.Errorf("hierarchy: duplicate %q at depth %d", name, depth)
			}
			m[name] = i
		}
		x.levels = append(x.levels, names)
		x.levelIdx = append(x.levelIdx, m)
	}

	for i, s := range hf.Sections {
		if s.ID != i {
			return nil, fmt.Errorf("hierarchy: section %d listed at position %d", s.ID, i)
		}
		if len(s.Parent) == 0 {
			s.Parent = nil
		}
		if len(s.Parent) != s.Depth {
			return nil, fmt.Errorf("hierarchy: section %d at depth %d has a %d-segment parent", s.ID, s.Depth, len(s.Parent))
		}
		key := s.Parent.Key(len(s.Parent) - 1)
		if _, dup := x.byParent[key]; dup {
			return nil, fmt.Errorf("hierarchy: parent %q owns two sections", s.Parent)
		}
		pos := make(map[string]int, len(s.Members))
		for j, name := range s.Members {
			if _, ok := x.LevelIndex(s.Depth, name); !ok {
				return nil, fmt.Errorf("hierarchy: section %d member %q missing from depth %d", s.ID, name, s.Depth)
			}
			pos[name] = j
		}
		x.byParent[key] = s.ID
		x.sections = append(x.sections, s)
		x.memberPos = append(x.memberPos, pos)
	}
	return x, nil
}

// LoadHierarchy reads a hierarchy file from path.
func LoadHierarchy(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadHierarchy(f)
}
