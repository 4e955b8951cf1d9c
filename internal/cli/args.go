package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/asyncdb/internal/queryir"
	"github.com/roach88/asyncdb/internal/record"
)

// parseKey reads a key argument as JSON. Text that is not valid JSON is
// taken as a string key, so `delete settings theme` works unquoted.
func parseKey(s string) (record.Key, error) {
	v, err := record.Unmarshal([]byte(s))
	if err != nil {
		v = record.String(s)
	}
	if err := record.ValidateKey(v); err != nil {
		return nil, badInput("invalid key %s: %v", s, err)
	}
	return v, nil
}

// parseObject reads a JSON object flag.
func parseObject(flag, s string) (record.Record, error) {
	obj, err := record.UnmarshalObject([]byte(s))
	if err != nil {
		return nil, badInput("--%s: %v", flag, err)
	}
	return obj, nil
}

// parseRecords reads a JSON array of objects, or a single object.
func parseRecords(flag, s string) ([]record.Record, error) {
	v, err := record.Unmarshal([]byte(strings.TrimSpace(s)))
	if err != nil {
		return nil, badInput("--%s: %v", flag, err)
	}
	switch val := v.(type) {
	case record.Object:
		return []record.Record{val}, nil
	case record.Array:
		out := make([]record.Record, len(val))
		for i, elem := range val {
			obj, ok := elem.(record.Object)
			if !ok {
				return nil, badInput("--%s: element %d is %s, not an object", flag, i, record.TypeName(elem))
			}
			out[i] = obj
		}
		return out, nil
	default:
		return nil, badInput("--%s: expected an object or an array of objects, got %s", flag, record.TypeName(v))
	}
}

// rangeFlags are the key range flags shared by list and range.
type rangeFlags struct {
	only      string
	lower     string
	upper     string
	lowerOpen bool
	upperOpen bool
}

func (r *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.only, "only", "", "match exactly this key (JSON)")
	cmd.Flags().StringVar(&r.lower, "lower", "", "lower bound key (JSON)")
	cmd.Flags().StringVar(&r.upper, "upper", "", "upper bound key (JSON)")
	cmd.Flags().BoolVar(&r.lowerOpen, "lower-open", false, "exclude the lower bound")
	cmd.Flags().BoolVar(&r.upperOpen, "upper-open", false, "exclude the upper bound")
}

// keyRange builds the range, or nil when no bound was given.
func (r *rangeFlags) keyRange() (*queryir.KeyRange, error) {
	var rng *queryir.KeyRange
	var err error
	switch {
	case r.only != "":
		if r.lower != "" || r.upper != "" {
			return nil, badInput("--only cannot be combined with --lower or --upper")
		}
		k, kerr := parseKey(r.only)
		if kerr != nil {
			return nil, kerr
		}
		rng, err = queryir.Only(k)
	case r.lower != "" && r.upper != "":
		lo, lerr := parseKey(r.lower)
		if lerr != nil {
			return nil, lerr
		}
		hi, herr := parseKey(r.upper)
		if herr != nil {
			return nil, herr
		}
		rng, err = queryir.Bound(lo, hi, r.lowerOpen, r.upperOpen)
	case r.lower != "":
		lo, lerr := parseKey(r.lower)
		if lerr != nil {
			return nil, lerr
		}
		rng, err = queryir.LowerBound(lo, r.lowerOpen)
	case r.upper != "":
		hi, herr := parseKey(r.upper)
		if herr != nil {
			return nil, herr
		}
		rng, err = queryir.UpperBound(hi, r.upperOpen)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, badInput("invalid range: %v", err)
	}
	return rng, nil
}

// recordList is the output of list and range.
type recordList struct {
	Table   string          `json:"table"`
	Index   string          `json:"index,omitempty"`
	Count   int             `json:"count"`
	Records []record.Record `json:"records"`
}

func (l recordList) String() string {
	var b strings.Builder
	for _, r := range l.Records {
		data, err := record.MarshalCanonical(r)
		if err != nil {
			fmt.Fprintf(&b, "<unprintable record: %v>\n", err)
			continue
		}
		b.Write(data)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "(%d records)", l.Count)
	return b.String()
}
