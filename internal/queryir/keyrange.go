package queryir

import (
	"fmt"

	"github.com/roach88/asyncdb/internal/record"
)

// KeyRange is an interval over keys. A nil bound is unbounded on that side.
type KeyRange struct {
	Lower     record.Key
	Upper     record.Key
	LowerOpen bool
	UpperOpen bool
}

// Only returns the range containing exactly k.
func Only(k record.Key) (*KeyRange, error) {
	if err := record.ValidateKey(k); err != nil {
		return nil, fmt.Errorf("only: %w", err)
	}
	return &KeyRange{Lower: k, Upper: k}, nil
}

// LowerBound returns the range of keys at or above k (above when open).
func LowerBound(k record.Key, open bool) (*KeyRange, error) {
	if err := record.ValidateKey(k); err != nil {
		return nil, fmt.Errorf("lower bound: %w", err)
	}
	return &KeyRange{Lower: k, LowerOpen: open}, nil
}

// UpperBound returns the range of keys at or below k (below when open).
func UpperBound(k record.Key, open bool) (*KeyRange, error) {
	if err := record.ValidateKey(k); err != nil {
		return nil, fmt.Errorf("upper bound: %w", err)
	}
	return &KeyRange{Upper: k, UpperOpen: open}, nil
}

// Bound returns the range between lower and upper.
// Fails when lower > upper, or lower == upper with either end open.
func Bound(lower, upper record.Key, lowerOpen, upperOpen bool) (*KeyRange, error) {
	r := &KeyRange{Lower: lower, Upper: upper, LowerOpen: lowerOpen, UpperOpen: upperOpen}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks both bounds are keys and the range is non-empty.
func (r *KeyRange) Validate() error {
	if r == nil {
		return nil
	}
	if r.Lower == nil && r.Upper == nil {
		return fmt.Errorf("key range: at least one bound is required")
	}
	if r.Lower != nil {
		if err := record.ValidateKey(r.Lower); err != nil {
			return fmt.Errorf("key range lower: %w", err)
		}
	}
	if r.Upper != nil {
		if err := record.ValidateKey(r.Upper); err != nil {
			return fmt.Errorf("key range upper: %w", err)
		}
	}
	if r.Lower != nil && r.Upper != nil {
		c := record.CompareKeys(r.Lower, r.Upper)
		if c > 0 {
			return fmt.Errorf("key range: lower bound is greater than upper bound")
		}
		if c == 0 && (r.LowerOpen || r.UpperOpen) {
			return fmt.Errorf("key range: equal bounds with an open end is empty")
		}
	}
	return nil
}

// Includes reports whether k falls inside the range. A nil range includes
// every key.
func (r *KeyRange) Includes(k record.Key) bool {
	if r == nil {
		return true
	}
	if r.Lower != nil {
		c := record.CompareKeys(k, r.Lower)
		if c < 0 || (c == 0 && r.LowerOpen) {
			return false
		}
	}
	if r.Upper != nil {
		c := record.CompareKeys(k, r.Upper)
		if c > 0 || (c == 0 && r.UpperOpen) {
			return false
		}
	}
	return true
}

// IsOnly reports whether the range holds a single key.
func (r *KeyRange) IsOnly() bool {
	return r != nil && r.Lower != nil && r.Upper != nil &&
		!r.LowerOpen && !r.UpperOpen && record.CompareKeys(r.Lower, r.Upper) == 0
}

// String renders the range in interval notation, e.g. [1, 5).
func (r *KeyRange) String() string {
	if r == nil {
		return "(-inf, +inf)"
	}
	lo, hi := "(-inf", "+inf)"
	if r.Lower != nil {
		br := "["
		if r.LowerOpen {
			br = "("
		}
		lo = br + keyString(r.Lower)
	}
	if r.Upper != nil {
		br := "]"
		if r.UpperOpen {
			br = ")"
		}
		hi = keyString(r.Upper) + br
	}
	return lo + ", " + hi
}

func keyString(k record.Key) string {
	b, err := record.MarshalCanonical(k)
	if err != nil {
		return fmt.Sprintf("%v", k)
	}
	return string(b)
}
