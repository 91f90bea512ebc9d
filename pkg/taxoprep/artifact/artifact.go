// Package artifact reads and writes tensorized dataset subsets (.tpa files).
//
// Layout: a 32-byte little-endian header, a JSON body holding one record per
// example, and a 16-byte footer carrying the CRC32 of the body.
package artifact

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/cognicore/taxoprep/pkg/taxoprep/internalerr"
	"github.com/cognicore/taxoprep/pkg/taxoprep/labels"
)

// MagicBytes identifies a valid .tpa file.
const (
	MagicBytes    uint32 = 0x41505054
	FormatVersion uint32 = 1
	HeaderSize    int    = 32
	FooterSize    int    = 16
	Extension            = ".tpa"
)

// Header is the fixed-size prefix of every artifact.
type Header struct {
	Magic     uint32
	Version   uint32
	Count     uint32
	MaxLength uint32
	Scheme    labels.Scheme
	Level     int32
}

// Example is one tensorized record.
type Example struct {
	InputIDs []int64
	Target   labels.Target
}

// Subset is an ordered list of examples sharing one scheme, level and length.
type Subset struct {
	Scheme    labels.Scheme
	Level     int
	MaxLength int
	Examples  []Example
}

// Len returns the number of examples.
func (s *Subset) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Examples)
}

// Info describes a written or verified artifact.
type Info struct {
	Count    int
	Checksum uint32
	Size     int64
}

// record is the body encoding of an Example. The scheme lives in the header.
type record struct {
	IDs       []int64  `json:"i"`
	Class     int      `json:"c,omitempty"`
	Decisions [][2]int `json:"d,omitempty"`
}

// Marshal encodes s into the artifact format.
func Marshal(s *Subset) ([]byte, Info, error) {
	records := make([]record, len(s.Examples))
	for i, ex := range s.Examples {
		if ex.Target.Scheme != s.Scheme {
			return nil, Info{}, fmt.Errorf("example %d has scheme %v in a %v subset", i, ex.Target.Scheme, s.Scheme)
		}
		if len(ex.InputIDs) != s.MaxLength {
			return nil, Info{}, fmt.Errorf("example %d has %d ids, want %d", i, len(ex.InputIDs), s.MaxLength)
		}
		r := record{IDs: ex.InputIDs, Class: ex.Target.Class}
		for _, d := range ex.Target.Decisions {
			r.Decisions = append(r.Decisions, [2]int{d.Section, d.Local})
		}
		records[i] = r
	}
	body, err := json.Marshal(records)
	if err != nil {
		return nil, Info{}, fmt.Errorf("marshaling examples: %w", err)
	}

	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(records)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(s.MaxLength))
	binary.LittleEndian.PutUint32(header[16:20], uint32(s.Scheme))
	binary.LittleEndian.PutUint32(header[20:24], uint32(int32(s.Level)))
	// header[24:32] is reserved and stays zero; creation time lives in the manifest.

	checksum := crc32.ChecksumIEEE(body)
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], checksum)
	binary.LittleEndian.PutUint64(footer[4:12], uint64(len(body)))

	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(body) + FooterSize)
	buf.Write(header)
	buf.Write(body)
	buf.Write(footer)
	return buf.Bytes(), Info{Count: len(records), Checksum: checksum, Size: int64(buf.Len())}, nil
}

// Unmarshal decodes and verifies an artifact. Any structural problem is
// reported as ErrCacheInvalid.
func Unmarshal(data []byte) (*Subset, Header, Info, error) {
	if len(data) < HeaderSize+FooterSize {
		return nil, Header{}, Info{}, fmt.Errorf("artifact too short (%d bytes): %w", len(data), internalerr.ErrCacheInvalid)
	}
	h := Header{
		Magic:     binary.LittleEndian.Uint32(data[0:4]),
		Version:   binary.LittleEndian.Uint32(data[4:8]),
		Count:     binary.LittleEndian.Uint32(data[8:12]),
		MaxLength: binary.LittleEndian.Uint32(data[12:16]),
		Scheme:    labels.Scheme(binary.LittleEndian.Uint32(data[16:20])),
		Level:     int32(binary.LittleEndian.Uint32(data[20:24])),
	}
	if h.Magic != MagicBytes {
		return nil, h, Info{}, fmt.Errorf("bad magic bytes %x: %w", h.Magic, internalerr.ErrCacheInvalid)
	}
	if h.Version != FormatVersion {
		return nil, h, Info{}, fmt.Errorf("unsupported version %d: %w", h.Version, internalerr.ErrCacheInvalid)
	}
	if !h.Scheme.Valid() {
		return nil, h, Info{}, fmt.Errorf("scheme %d: %w", h.Scheme, internalerr.ErrCacheInvalid)
	}

	footer := data[len(data)-FooterSize:]
	checksum := binary.LittleEndian.Uint32(footer[0:4])
	bodyLen := binary.LittleEndian.Uint64(footer[4:12])
	body := data[HeaderSize : len(data)-FooterSize]
	if uint64(len(body)) != bodyLen {
		return nil, h, Info{}, fmt.Errorf("body is %d bytes, footer says %d: %w", len(body), bodyLen, internalerr.ErrCacheInvalid)
	}
	if got := crc32.ChecksumIEEE(body); got != checksum {
		return nil, h, Info{}, fmt.Errorf("checksum %08x, want %08x: %w", got, checksum, internalerr.ErrCacheInvalid)
	}

	var records []record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, h, Info{}, fmt.Errorf("parsing examples: %v: %w", err, internalerr.ErrCacheInvalid)
	}
	if len(records) != int(h.Count) {
		return nil, h, Info{}, fmt.Errorf("%d examples, header says %d: %w", len(records), h.Count, internalerr.ErrCacheInvalid)
	}

	s := &Subset{
		Scheme:    h.Scheme,
		Level:     int(h.Level),
		MaxLength: int(h.MaxLength),
		Examples:  make([]Example, len(records)),
	}
	for i, r := range records {
		if len(r.IDs) != s.MaxLength {
			return nil, h, Info{}, fmt.Errorf("example %d has %d ids, want %d: %w", i, len(r.IDs), s.MaxLength, internalerr.ErrCacheInvalid)
		}
		t := labels.Target{Scheme: h.Scheme}
		if h.Scheme == labels.Section {
			t.Decisions = make([]labels.Decision, len(r.Decisions))
			for j, d := range r.Decisions {
				t.Decisions[j] = labels.Decision{Section: d[0], Local: d[1]}
			}
		} else {
			t.Class = r.Class
		}
		s.Examples[i] = Example{InputIDs: r.IDs, Target: t}
	}
	return s, h, Info{Count: len(records), Checksum: checksum, Size: int64(len(data))}, nil
}

// WriteFile atomically writes s to path. It writes to a .tmp file, syncs it
// and renames on success.
func WriteFile(path string, s *Subset) (Info, error) {
	data, info, err := Marshal(s)
	if err != nil {
		return Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Info{}, fmt.Errorf("creating artifact directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return Info{}, fmt.Errorf("creating temp artifact file: %w", err)
	}
	defer os.Remove(tmpPath)
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return Info{}, fmt.Errorf("writing artifact: %w", err)
	}
	if err := f.Sync(); err != nil {
		return Info{}, fmt.Errorf("syncing artifact file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Info{}, fmt.Errorf("closing artifact file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return Info{}, fmt.Errorf("renaming artifact file: %w", err)
	}
	return info, nil
}

// ReadFile reads and verifies the artifact at path.
func ReadFile(path string) (*Subset, Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Info{}, fmt.Errorf("reading artifact: %w", err)
	}
	s, _, info, err := Unmarshal(data)
	if err != nil {
		return nil, Info{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return s, info, nil
}
