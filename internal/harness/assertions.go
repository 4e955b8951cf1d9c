package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/asyncdb/internal/record"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			if event.Type == EventCall {
				fmt.Fprintf(&buf, "  [%d] %s %s %s\n", event.Seq, event.Op, event.Table, canonicalString(event.Args))
			}
		}
	}
	return buf.String()
}

// evaluateAssertions runs every assertion and returns one message per
// failure.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var msgs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(h.result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(h.result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(h.result.Trace, a)
		case AssertFinalState:
			err = h.assertFinalState(ctx, a)
		case AssertRecordCount:
			err = h.assertRecordCount(ctx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return msgs
}

// assertTraceContains checks that the trace holds a call to the op,
// against the table when one is named.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type == EventCall && event.Op == assertion.Op &&
			(assertion.Table == "" || event.Table == assertion.Table) {
			return nil
		}
	}
	expected := assertion.Op
	if assertion.Table != "" {
		expected += " on " + assertion.Table
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that ops are first called in the given order.
// Intervening calls are allowed.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int64)
	for _, event := range trace {
		if event.Type != EventCall {
			continue
		}
		if _, seen := positions[event.Op]; !seen {
			positions[event.Op] = event.Seq
		}
	}

	for _, op := range assertion.Ops {
		if _, ok := positions[op]; !ok {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", assertion.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(assertion.Ops); i++ {
		prev, curr := assertion.Ops[i-1], assertion.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
				Actual: fmt.Sprintf("%s (seq %d) should be before %s (seq %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the op is called exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventCall && event.Op == assertion.Op {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d calls of %s", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d calls", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState reads the table and checks that exactly one record
// matches Where and that it holds every field of Expect.
func (h *Harness) assertFinalState(ctx context.Context, assertion Assertion) error {
	where, err := record.ObjectFromGo(assertion.Where)
	if err != nil {
		return fmt.Errorf("where: %w", err)
	}
	expect, err := record.ObjectFromGo(assertion.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}

	recs, err := h.readTable(ctx, assertion.Table)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("read table %s", assertion.Table),
			Actual:   fmt.Sprintf("read error: %v", err),
		}
	}

	var matched []record.Record
	for _, rec := range recs {
		if containsFields(rec, where) {
			matched = append(matched, rec)
		}
	}
	switch len(matched) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record in %s where %s", assertion.Table, canonicalString(where)),
			Actual:   "record not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one record in %s where %s", assertion.Table, canonicalString(where)),
			Actual:   fmt.Sprintf("%d records matched (assertion is ambiguous)", len(matched)),
		}
	}

	if !containsFields(matched[0], expect) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record containing %s", canonicalString(expect)),
			Actual:   canonicalString(matched[0]),
		}
	}
	return nil
}

// assertRecordCount checks the table holds exactly Count records.
func (h *Harness) assertRecordCount(ctx context.Context, assertion Assertion) error {
	recs, err := h.readTable(ctx, assertion.Table)
	if err != nil {
		return &AssertionError{
			Type:     AssertRecordCount,
			Expected: fmt.Sprintf("read table %s", assertion.Table),
			Actual:   fmt.Sprintf("read error: %v", err),
		}
	}
	if len(recs) != assertion.Count {
		return &AssertionError{
			Type:     AssertRecordCount,
			Expected: fmt.Sprintf("%d records in %s", assertion.Count, assertion.Table),
			Actual:   fmt.Sprintf("%d records", len(recs)),
		}
	}
	return nil
}

// readTable reads a table without recording the read in the trace.
func (h *Harness) readTable(ctx context.Context, table string) ([]record.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()
	return h.handle.GetAll(ctx, table).Await(ctx)
}

// containsFields reports whether rec holds every field of want (subset
// match). Extra fields in rec are ignored.
func containsFields(rec, want record.Object) bool {
	for k, v := range want {
		got, ok := rec[k]
		if !ok || !record.Equal(got, v) {
			return false
		}
	}
	return true
}
