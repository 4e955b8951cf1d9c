package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/asyncdb/internal/asyncdb"
	"github.com/roach88/asyncdb/internal/engine"
	"github.com/roach88/asyncdb/internal/queryir"
	"github.com/roach88/asyncdb/internal/record"
	"github.com/roach88/asyncdb/internal/schemafile"
	"github.com/roach88/asyncdb/internal/store"
)

// stepTimeout bounds each operation.
const stepTimeout = 10 * time.Second

// Harness executes one scenario.
type Harness struct {
	handle *asyncdb.Handle
	schema *schemafile.Schema
	clock  *engine.Clock
	logger *slog.Logger
	result *Result
}

// Run executes a scenario against a fresh database in a temporary
// directory and returns the result.
//
// An error means the scenario could not be run (bad schema, setup step
// failed, malformed values); failed expectations are reported in the
// Result instead.
func Run(scenario *Scenario) (*Result, error) {
	schema, err := schemafile.Load(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	dir, err := os.MkdirTemp("", "asyncdb-scenario-")
	if err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	defer os.RemoveAll(dir)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f, err := engine.NewFactory(
		engine.Config{Driver: store.DriverMattn, Dir: dir},
		engine.WithLogger(logger),
		engine.WithIDGenerator(engine.NewSequenceGenerator(scenario.Name)),
	)
	if err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		f.Run(loopCtx)
	}()
	defer func() {
		f.Stop()
		<-stopped
		cancel()
	}()

	handle, err := asyncdb.New(f, asyncdb.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	h := &Harness{
		handle: handle,
		schema: schema,
		clock:  engine.NewClock(),
		logger: logger,
		result: NewResult(),
	}
	ctx := context.Background()

	if err := h.open(ctx); err != nil {
		return nil, fmt.Errorf("open %s: %w", schema.Database, err)
	}
	for i, step := range scenario.Setup {
		if err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("setup step %d (%s): %w", i, step.Op, err)
		}
	}
	for i, step := range scenario.Flow {
		if err := h.runFlowStep(ctx, i, step); err != nil {
			return nil, fmt.Errorf("flow step %d (%s): %w", i, step.Op, err)
		}
	}

	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions) {
		h.result.AddError(msg)
	}
	if err := handle.Close(); err != nil {
		h.logger.Warn("close handle", "error", err)
	}
	return h.result, nil
}

// malformedError marks a step whose values could not be converted.
type malformedError struct {
	err error
}

func (e *malformedError) Error() string { return e.err.Error() }
func (e *malformedError) Unwrap() error { return e.err }

// runFlowStep executes a step and checks its expect clause. Only malformed
// steps return an error.
func (h *Harness) runFlowStep(ctx context.Context, i int, step Step) error {
	err := h.execute(ctx, step)
	var malformed *malformedError
	if errors.As(err, &malformed) {
		return err
	}

	expect := step.Expect
	if expect == nil {
		expect = &Expect{Status: string(asyncdb.StatusSuccess)}
	}
	where := fmt.Sprintf("flow[%d] %s", i, step.Op)

	if err != nil {
		if expect.Status != string(asyncdb.StatusError) {
			h.result.AddError(fmt.Sprintf("%s: expected %s, got error: %v", where, expect.Status, err))
			return nil
		}
		if expect.Error != "" && string(asyncdb.KindOf(err)) != expect.Error {
			h.result.AddError(fmt.Sprintf("%s: expected %s, got %s", where, expect.Error, asyncdb.KindOf(err)))
		}
		return nil
	}
	if expect.Status != string(asyncdb.StatusSuccess) {
		h.result.AddError(fmt.Sprintf("%s: expected %s, got SUCCESS", where, expect.Status))
		return nil
	}
	if expect.Records != nil {
		recs, cerr := toRecords(expect.Records)
		if cerr != nil {
			return &malformedError{err: fmt.Errorf("expect.records: %w", cerr)}
		}
		want := toArray(recs)
		got := h.lastResult()
		if !record.Equal(got, want) {
			h.result.AddError(fmt.Sprintf("%s: records mismatch:\n  expected: %s\n  actual:   %s",
				where, canonicalString(want), canonicalString(got)))
		}
	}
	return nil
}

// lastResult returns the result of the latest settlement.
func (h *Harness) lastResult() record.Value {
	for i := len(h.result.Trace) - 1; i >= 0; i-- {
		if h.result.Trace[i].Type == EventSettle {
			return h.result.Trace[i].Result
		}
	}
	return nil
}

func (h *Harness) call(op, table string, args record.Object) {
	h.result.Trace = append(h.result.Trace, TraceEvent{
		Seq:   h.clock.Next(),
		Type:  EventCall,
		Op:    op,
		Table: table,
		Args:  args,
	})
}

func (h *Harness) settle(op, table string, result record.Value, err error) {
	ev := TraceEvent{
		Seq:    h.clock.Next(),
		Type:   EventSettle,
		Op:     op,
		Table:  table,
		Status: asyncdb.StatusSuccess,
		Result: result,
	}
	if err != nil {
		ev.Status = asyncdb.StatusError
		ev.Result = nil
		ev.Error = asyncdb.KindOf(err)
		var engErr *engine.Error
		if errors.As(err, &engErr) {
			ev.Cause = string(engErr.Name)
		}
	}
	h.result.Trace = append(h.result.Trace, ev)
	h.logger.Debug("step settled", "op", op, "table", table, "status", ev.Status)
}

func (h *Harness) open(ctx context.Context) error {
	args := record.Object{
		"database": record.String(h.schema.Database),
		"version":  record.Int(h.schema.Version),
	}
	h.call(OpOpen, "", args)

	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()
	_, err := h.handle.Open(ctx, h.schema.Database, h.schema.Version, h.schema.Tables).Await(ctx)
	var result record.Value
	if err == nil {
		result = record.Object{"version": record.Int(h.handle.Version())}
	}
	h.settle(OpOpen, "", result, err)
	return err
}

// execute runs one step and records it in the trace.
func (h *Harness) execute(ctx context.Context, step Step) error {
	if step.Op == OpReopen {
		if err := h.handle.Close(); err != nil {
			return err
		}
		return h.open(ctx)
	}

	args, err := stepArgs(step)
	if err != nil {
		return &malformedError{err: err}
	}
	h.call(step.Op, step.Table, args)

	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	var result record.Value
	switch step.Op {
	case OpInsertMany:
		recs, _ := toRecords(step.Records)
		_, err = h.handle.InsertMany(ctx, step.Table, recs).Await(ctx)
		result = record.Object{"count": record.Int(len(recs))}

	case OpGetAll, OpGetOrderedRange:
		opts, oerr := queryOptions(step)
		if oerr != nil {
			return &malformedError{err: oerr}
		}
		var recs []record.Record
		if step.Op == OpGetAll {
			recs, err = h.handle.GetAll(ctx, step.Table, opts...).Await(ctx)
		} else {
			recs, err = h.handle.GetOrderedRange(ctx, step.Table, step.Index, opts...).Await(ctx)
		}
		result = toArray(recs)

	case OpUpdateByKey:
		key := args["key"]
		patch, _ := args["patch"].(record.Object)
		var ok bool
		ok, err = h.handle.UpdateByKey(ctx, step.Table, key, patch).Await(ctx)
		result = record.Bool(ok)

	case OpDeleteByKey:
		var ok bool
		ok, err = h.handle.DeleteByKey(ctx, step.Table, args["key"]).Await(ctx)
		result = record.Bool(ok)

	case OpUpsert:
		rec, _ := args["record"].(record.Object)
		_, err = h.handle.Upsert(ctx, step.Table, rec, args["key"]).Await(ctx)

	case OpDropDatabase:
		name := step.Database
		if name == "" {
			name = h.schema.Database
		}
		h.handle.DropDatabase(name)
	}

	h.settle(step.Op, step.Table, result, err)
	return err
}

// stepArgs converts a step's YAML values into the call's trace arguments.
func stepArgs(step Step) (record.Object, error) {
	args := record.Object{}
	if step.Index != "" {
		args["index"] = record.String(step.Index)
	}
	if step.Records != nil {
		recs, err := toRecords(step.Records)
		if err != nil {
			return nil, fmt.Errorf("records: %w", err)
		}
		args["records"] = toArray(recs)
	}
	if step.Record != nil {
		rec, err := record.ObjectFromGo(step.Record)
		if err != nil {
			return nil, fmt.Errorf("record: %w", err)
		}
		args["record"] = rec
	}
	if step.Key != nil {
		k, err := toKey(step.Key)
		if err != nil {
			return nil, fmt.Errorf("key: %w", err)
		}
		args["key"] = k
	}
	if step.Patch != nil {
		patch, err := record.ObjectFromGo(step.Patch)
		if err != nil {
			return nil, fmt.Errorf("patch: %w", err)
		}
		args["patch"] = patch
	}
	if r := step.Range; r != nil {
		rng := record.Object{}
		for name, v := range map[string]any{"only": r.Only, "lower": r.Lower, "upper": r.Upper} {
			if v == nil {
				continue
			}
			k, err := toKey(v)
			if err != nil {
				return nil, fmt.Errorf("range.%s: %w", name, err)
			}
			rng[name] = k
		}
		if r.LowerOpen {
			rng["lower_open"] = record.Bool(true)
		}
		if r.UpperOpen {
			rng["upper_open"] = record.Bool(true)
		}
		args["range"] = rng
	}
	if step.Limit != 0 {
		args["limit"] = record.Int(step.Limit)
	}
	if step.Direction != "" {
		args["direction"] = record.String(step.Direction)
	}
	if step.Database != "" {
		args["database"] = record.String(step.Database)
	}
	return args, nil
}

func queryOptions(step Step) ([]asyncdb.QueryOption, error) {
	var opts []asyncdb.QueryOption
	if r := step.Range; r != nil {
		rng, err := keyRange(r)
		if err != nil {
			return nil, err
		}
		opts = append(opts, asyncdb.WithRange(rng))
	}
	if step.Limit != 0 {
		opts = append(opts, asyncdb.WithLimit(step.Limit))
	}
	if step.Direction != "" {
		dir, err := queryir.ParseDirection(step.Direction)
		if err != nil {
			return nil, err
		}
		opts = append(opts, asyncdb.WithDirection(dir))
	}
	return opts, nil
}

func keyRange(r *RangeSpec) (*queryir.KeyRange, error) {
	conv := func(v any) (record.Key, error) {
		if v == nil {
			return nil, nil
		}
		return toKey(v)
	}
	only, err := conv(r.Only)
	if err != nil {
		return nil, err
	}
	lower, err := conv(r.Lower)
	if err != nil {
		return nil, err
	}
	upper, err := conv(r.Upper)
	if err != nil {
		return nil, err
	}
	switch {
	case only != nil:
		return queryir.Only(only)
	case lower != nil && upper != nil:
		return queryir.Bound(lower, upper, r.LowerOpen, r.UpperOpen)
	case lower != nil:
		return queryir.LowerBound(lower, r.LowerOpen)
	case upper != nil:
		return queryir.UpperBound(upper, r.UpperOpen)
	}
	return nil, nil
}

func toKey(v any) (record.Key, error) {
	k, err := record.FromGo(v)
	if err != nil {
		return nil, err
	}
	if err := record.ValidateKey(k); err != nil {
		return nil, err
	}
	return k, nil
}

func toRecords(in []map[string]any) ([]record.Record, error) {
	out := make([]record.Record, len(in))
	for i, m := range in {
		obj, err := record.ObjectFromGo(m)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = obj
	}
	return out, nil
}

func toArray(recs []record.Record) record.Array {
	arr := make(record.Array, len(recs))
	for i, r := range recs {
		arr[i] = r
	}
	return arr
}

func canonicalString(v record.Value) string {
	b, err := record.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(b)
}
