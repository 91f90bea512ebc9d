// Package dataset loads labeled product records from CSV and downloads
// published dataset files when they are not present locally.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is one labeled text.
type Record struct {
	Text     string
	Category string
}

// Dataset is an ordered list of records. Row numbers are positions in Records.
type Dataset struct {
	Records []Record
}

// Options selects the CSV columns. Empty names mean the first column for
// text and the last column for the category.
type Options struct {
	TextColumn     string
	CategoryColumn string
	Comma          rune
}

// Load reads the CSV file at path.
func Load(path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	ds, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Read parses CSV with a header row from r.
func Read(r io.Reader, opts Options) (*Dataset, error) {
	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("dataset has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("dataset needs at least 2 columns, header has %d", len(header))
	}

	textCol, err := column(header, opts.TextColumn, 0)
	if err != nil {
		return nil, err
	}
	catCol, err := column(header, opts.CategoryColumn, len(header)-1)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(ds.Records), err)
		}
		ds.Records = append(ds.Records, Record{
			Text:     row[textCol],
			Category: row[catCol],
		})
	}
	return ds, nil
}

func column(header []string, name string, fallback int) (int, error) {
	if name == "" {
		return fallback, nil
	}
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("column %q not in header %v", name, header)
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.Records)
}

// Texts returns the text of every record in order.
func (d *Dataset) Texts() []string {
	out := make([]string, len(d.Records))
	for i, r := range d.Records {
		out[i] = r.Text
	}
	return out
}

// Categories returns the raw category label of every record in order.
func (d *Dataset) Categories() []string {
	out := make([]string, len(d.Records))
	for i, r := range d.Records {
		out[i] = r.Category
	}
	return out
}

// MaxWords returns the largest whitespace-separated word count of any raw text.
func (d *Dataset) MaxWords() int {
	longest := 0
	for _, r := range d.Records {
		if n := len(strings.Fields(r.Text)); n > longest {
			longest = n
		}
	}
	return longest
}
