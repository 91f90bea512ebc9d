package internalerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	ErrMalformedPath    = errors.New("malformed category path")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrIndexOutOfRange  = errors.New("level index out of range")
	ErrInvalidScheme    = errors.New("invalid label scheme")
	ErrInvalidStage     = errors.New("invalid loader stage")
	ErrCacheMiss        = errors.New("cache miss")
	ErrCacheInvalid     = errors.New("cache artifact invalid")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// RecordError identifies the dataset row that failed indexing or encoding.
type RecordError struct {
	Row   int
	Label string
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d (%q): %v", e.Row, e.Label, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// AtRow wraps err with the offending row and its raw label.
func AtRow(row int, label string, err error) error {
	if err == nil {
		return nil
	}
	return &RecordError{Row: row, Label: label, Err: err}
}
