package artifact

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/cognicore/taxoprep/pkg/taxoprep/internalerr"
	"github.com/cognicore/taxoprep/pkg/taxoprep/labels"
)

func sectionSubset() *Subset {
	return &Subset{
		Scheme:    labels.Section,
		Level:     labels.AllLevels,
		MaxLength: 4,
		Examples: []Example{
			{
				InputIDs: []int64{2, 10, 3, 0},
				Target: labels.Target{Scheme: labels.Section, Decisions: []labels.Decision{
					{Section: 0, Local: 0}, {Section: 1, Local: 0}, {Section: 2, Local: 1},
				}},
			},
			{
				InputIDs: []int64{2, 11, 12, 3},
				Target:   labels.Target{Scheme: labels.Section, Decisions: []labels.Decision{}},
			},
		},
	}
}

func TestWriteReadFile(t *testing.T) {
	subsets := map[string]*Subset{
		"section": sectionSubset(),
		"level": {
			Scheme: labels.Level, Level: 1, MaxLength: 3,
			Examples: []Example{
				{InputIDs: []int64{2, 5, 3}, Target: labels.Target{Scheme: labels.Level, Class: 4}},
				{InputIDs: []int64{2, 3, 0}, Target: labels.Target{Scheme: labels.Level, Class: 0}},
			},
		},
		"empty": {Scheme: labels.Flat, Level: labels.AllLevels, MaxLength: 7},
	}

	for name, s := range subsets {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name+Extension)
			written, err := WriteFile(path, s)
			if err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if written.Count != s.Len() {
				t.Errorf("Count = %d, want %d", written.Count, s.Len())
			}
			if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
				t.Errorf("temp file left behind: %v", err)
			}

			got, read, err := ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if read.Checksum != written.Checksum {
				t.Errorf("checksum %08x, want %08x", read.Checksum, written.Checksum)
			}
			if got.Scheme != s.Scheme || got.Level != s.Level || got.MaxLength != s.MaxLength {
				t.Errorf("header = %v/%d/%d, want %v/%d/%d",
					got.Scheme, got.Level, got.MaxLength, s.Scheme, s.Level, s.MaxLength)
			}
			if got.Len() != s.Len() {
				t.Fatalf("Len = %d, want %d", got.Len(), s.Len())
			}
			for i := range s.Examples {
				if !reflect.DeepEqual(got.Examples[i], s.Examples[i]) {
					t.Errorf("example %d = %+v, want %+v", i, got.Examples[i], s.Examples[i])
				}
			}
		})
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	first, _, err := Marshal(sectionSubset())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, _, err := Marshal(sectionSubset())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same subset marshaled to different bytes")
	}
	if !bytes.Equal(first[24:HeaderSize], make([]byte, 8)) {
		t.Errorf("reserved header bytes = %x", first[24:HeaderSize])
	}
}

func TestUnmarshalDetectsCorruption(t *testing.T) {
	data, _, err := Marshal(sectionSubset())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	corrupt := func(f func(b []byte) []byte) []byte {
		b := append([]byte(nil), data...)
		return f(b)
	}
	tests := map[string][]byte{
		"flipped body byte": corrupt(func(b []byte) []byte { b[HeaderSize+3] ^= 0xff; return b }),
		"bad magic":         corrupt(func(b []byte) []byte { b[0] = 0; return b }),
		"bad version":       corrupt(func(b []byte) []byte { b[4] = 9; return b }),
		"truncated":         corrupt(func(b []byte) []byte { return b[:len(b)-5] }),
		"too short":         data[:10],
		"count mismatch":    corrupt(func(b []byte) []byte { b[8] = 7; return b }),
		"bad scheme":        corrupt(func(b []byte) []byte { b[16] = 42; return b }),
	}
	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, _, err := Unmarshal(b)
			if !errors.Is(err, internalerr.ErrCacheInvalid) {
				t.Errorf("err = %v, want ErrCacheInvalid", err)
			}
		})
	}
}

func TestMarshalRejectsInconsistentSubset(t *testing.T) {
	s := sectionSubset()
	s.Examples[1].InputIDs = []int64{2, 3}
	if _, _, err := Marshal(s); err == nil {
		t.Error("expected error for short input ids")
	}

	s = sectionSubset()
	s.Examples[0].Target.Scheme = labels.Flat
	if _, _, err := Marshal(s); err == nil {
		t.Error("expected error for mixed schemes")
	}
}

func TestReadFileMissing(t *testing.T) {
	_, _, err := ReadFile(filepath.Join(t.TempDir(), "missing"+Extension))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not-exist", err)
	}
}
