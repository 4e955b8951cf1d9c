// Package querysql compiles queryir scans into parameterized SQLite queries
// over the engine's physical tables.
//
// Physical layout (see internal/store):
//
//	records(store, key, value)                  PRIMARY KEY (store, key)
//	index_entries(store, idx, key, primary_key) PRIMARY KEY (store, idx, key, primary_key)
//
// Keys are stored in their order-preserving encoding (record.EncodeKey), so
// SQLite's BLOB comparison (memcmp) yields key order directly.
//
// CRITICAL: ALL queries include ORDER BY for deterministic results.
// CRITICAL: All values are parameterized (never interpolated).
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/asyncdb/internal/queryir"
)

// Compile converts a Scan into SQL returning three columns in scan order:
// key, primary_key, value.
func Compile(s queryir.Scan) (string, []any, error) {
	if err := s.Validate(); err != nil {
		return "", nil, fmt.Errorf("compile scan: %w", err)
	}
	lower, upper, err := s.EncodedBounds()
	if err != nil {
		return "", nil, fmt.Errorf("compile scan: %w", err)
	}

	dir := s.Direction
	if dir == "" {
		dir = queryir.Next
	}
	order := "ASC"
	cmp := ">"
	if dir.Descending() {
		order = "DESC"
		cmp = "<"
	}

	switch {
	case !s.OverIndex():
		return compileStoreScan(s, lower, upper, order, cmp)
	case dir.Unique():
		return compileUniqueIndexScan(s, lower, upper, order, cmp)
	default:
		return compileIndexScan(s, lower, upper, order, cmp)
	}
}

// CompileCount converts a Scan into SQL returning the number of matching rows.
// Direction, Limit and After are ignored.
func CompileCount(s queryir.Scan) (string, []any, error) {
	s.Direction, s.Limit, s.After = queryir.Next, 0, nil
	if err := s.Validate(); err != nil {
		return "", nil, fmt.Errorf("compile count: %w", err)
	}
	lower, upper, err := s.EncodedBounds()
	if err != nil {
		return "", nil, fmt.Errorf("compile count: %w", err)
	}

	w := &where{}
	var from string
	if s.OverIndex() {
		from = "index_entries e"
		w.add("e.store = ?", s.Store)
		w.add("e.idx = ?", s.Index)
		w.addRange("e.key", s.Range, lower, upper)
	} else {
		from = "records r"
		w.add("r.store = ?", s.Store)
		w.addRange("r.key", s.Range, lower, upper)
	}
	return "SELECT COUNT(*) FROM " + from + w.String(), w.args, nil
}

func compileStoreScan(s queryir.Scan, lower, upper []byte, order, cmp string) (string, []any, error) {
	w := &where{}
	w.add("r.store = ?", s.Store)
	w.addRange("r.key", s.Range, lower, upper)
	if s.After != nil {
		w.add("r.key "+cmp+" ?", s.After.Key)
	}

	var b strings.Builder
	b.WriteString("SELECT r.key, r.key, r.value FROM records r")
	b.WriteString(w.String())
	b.WriteString(" ORDER BY r.key " + order)
	args := w.args
	if s.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, s.Limit)
	}
	return b.String(), args, nil
}

func compileIndexScan(s queryir.Scan, lower, upper []byte, order, cmp string) (string, []any, error) {
	w := &where{}
	w.add("e.store = ?", s.Store)
	w.add("e.idx = ?", s.Index)
	w.addRange("e.key", s.Range, lower, upper)
	if s.After != nil {
		// Row-value comparison resumes past duplicates of the same index key.
		w.add("(e.key, e.primary_key) "+cmp+" (?, ?)", s.After.Key, s.After.PrimaryKey)
	}

	var b strings.Builder
	b.WriteString("SELECT e.key, e.primary_key, r.value FROM index_entries e")
	b.WriteString(" JOIN records r ON r.store = e.store AND r.key = e.primary_key")
	b.WriteString(w.String())
	b.WriteString(" ORDER BY e.key " + order + ", e.primary_key " + order)
	args := w.args
	if s.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, s.Limit)
	}
	return b.String(), args, nil
}

// compileUniqueIndexScan keeps one row per index key: the one with the lowest
// primary key, in both directions.
func compileUniqueIndexScan(s queryir.Scan, lower, upper []byte, order, cmp string) (string, []any, error) {
	w := &where{}
	w.add("e.store = ?", s.Store)
	w.add("e.idx = ?", s.Index)
	w.addRange("e.key", s.Range, lower, upper)
	if s.After != nil {
		w.add("e.key "+cmp+" ?", s.After.Key)
	}

	var b strings.Builder
	b.WriteString("SELECT u.key, u.primary_key, r.value FROM (")
	b.WriteString("SELECT e.key AS key, MIN(e.primary_key) AS primary_key FROM index_entries e")
	b.WriteString(w.String())
	b.WriteString(" GROUP BY e.key ORDER BY e.key " + order)
	args := w.args
	if s.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, s.Limit)
	}
	b.WriteString(") u JOIN records r ON r.store = ? AND r.key = u.primary_key")
	b.WriteString(" ORDER BY u.key " + order)
	args = append(args, s.Store)
	return b.String(), args, nil
}

// where accumulates AND-ed conditions with their parameters.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) addRange(col string, r *queryir.KeyRange, lower, upper []byte) {
	if r == nil {
		return
	}
	if lower != nil {
		op := ">="
		if r.LowerOpen {
			op = ">"
		}
		w.add(col+" "+op+" ?", lower)
	}
	if upper != nil {
		op := "<="
		if r.UpperOpen {
			op = "<"
		}
		w.add(col+" "+op+" ?", upper)
	}
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
