package asyncdb

import "github.com/roach88/asyncdb/internal/queryir"

// QueryOption configures GetAll and GetOrderedRange.
type QueryOption func(*queryOptions)

type queryOptions struct {
	rng   *queryir.KeyRange
	limit int
	dir   queryir.Direction
}

// WithRange bounds the keys read. The default reads every key.
func WithRange(r *queryir.KeyRange) QueryOption {
	return func(o *queryOptions) {
		o.rng = r
	}
}

// WithLimit caps the number of records returned by GetAll. Zero means
// unbounded.
func WithLimit(n int) QueryOption {
	return func(o *queryOptions) {
		o.limit = n
	}
}

// WithDirection sets the cursor direction of GetOrderedRange. Default: next.
func WithDirection(d queryir.Direction) QueryOption {
	return func(o *queryOptions) {
		o.dir = d
	}
}

func applyQueryOptions(opts []QueryOption) queryOptions {
	o := queryOptions{dir: queryir.Next}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
