package queryir

import (
	"fmt"

	"github.com/roach88/asyncdb/internal/record"
)

// Direction selects iteration order and duplicate handling for a cursor.
type Direction string

const (
	// Next iterates ascending, visiting every record.
	Next Direction = "next"
	// NextUnique iterates ascending, visiting the first record per key.
	NextUnique Direction = "nextunique"
	// Prev iterates descending, visiting every record.
	Prev Direction = "prev"
	// PrevUnique iterates descending, visiting the first record per key.
	PrevUnique Direction = "prevunique"
)

// ParseDirection maps a direction name to a Direction. The empty string
// means Next.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "":
		return Next, nil
	case Next, NextUnique, Prev, PrevUnique:
		return Direction(s), nil
	}
	return "", fmt.Errorf("invalid direction %q: must be one of next, nextunique, prev, prevunique", s)
}

// Descending reports whether the direction walks keys from high to low.
func (d Direction) Descending() bool {
	return d == Prev || d == PrevUnique
}

// Unique reports whether duplicate index keys are collapsed.
func (d Direction) Unique() bool {
	return d == NextUnique || d == PrevUnique
}

// Position is a cursor location in encoded key form. For object store scans
// PrimaryKey equals Key.
type Position struct {
	Key        []byte
	PrimaryKey []byte
}

// Scan is an ordered read over an object store or one of its indexes.
type Scan struct {
	// Store is the object store name (required).
	Store string

	// Index names an index of Store; empty scans the store itself.
	Index string

	// Range bounds the scanned keys (index keys for index scans). Nil scans
	// every key.
	Range *KeyRange

	// Direction defaults to Next when empty.
	Direction Direction

	// Limit caps the number of rows; zero means unbounded.
	Limit int

	// After resumes strictly past this position in scan order.
	After *Position
}

// Validate checks the scan is well-formed.
func (s Scan) Validate() error {
	if s.Store == "" {
		return fmt.Errorf("scan: store is required")
	}
	if _, err := ParseDirection(string(s.Direction)); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if s.Limit < 0 {
		return fmt.Errorf("scan: negative limit %d", s.Limit)
	}
	if err := s.Range.Validate(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if s.After != nil && len(s.After.Key) == 0 {
		return fmt.Errorf("scan: resume position has no key")
	}
	return nil
}

// OverIndex reports whether the scan reads an index.
func (s Scan) OverIndex() bool {
	return s.Index != ""
}

// EncodedBounds returns the encoded lower and upper bounds, nil when absent.
func (s Scan) EncodedBounds() (lower, upper []byte, err error) {
	if s.Range == nil {
		return nil, nil, nil
	}
	if s.Range.Lower != nil {
		if lower, err = record.EncodeKey(s.Range.Lower); err != nil {
			return nil, nil, err
		}
	}
	if s.Range.Upper != nil {
		if upper, err = record.EncodeKey(s.Range.Upper); err != nil {
			return nil, nil, err
		}
	}
	return lower, upper, nil
}
