package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/asyncdb/internal/asyncdb"
	"github.com/roach88/asyncdb/internal/record"
)

func loadTestdata(t *testing.T, name string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return scenario
}

func TestRun_Scenarios(t *testing.T) {
	for _, name := range []string{
		"customers_roundtrip",
		"unique_violation",
		"update_delete",
		"ordered_range",
		"drop_reopen",
	} {
		t.Run(name, func(t *testing.T) {
			result, err := Run(loadTestdata(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"customers_roundtrip", "unique_violation"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadTestdata(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario := loadTestdata(t, "unique_violation")

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first.Trace)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second.Trace)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_TraceEvents(t *testing.T) {
	result, err := Run(loadTestdata(t, "unique_violation"))
	require.NoError(t, err)
	require.Len(t, result.Trace, 8)

	for i, ev := range result.Trace {
		assert.Equal(t, int64(i+1), ev.Seq)
		if i%2 == 0 {
			assert.Equal(t, EventCall, ev.Type)
		} else {
			assert.Equal(t, EventSettle, ev.Type)
		}
	}

	failed := result.Trace[5]
	assert.Equal(t, OpInsertMany, failed.Op)
	assert.Equal(t, asyncdb.StatusError, failed.Status)
	assert.Equal(t, asyncdb.KindTransaction, failed.Error)
	assert.Equal(t, "ConstraintError", failed.Cause)
	assert.Nil(t, failed.Result)
}

func TestRun_ExpectMismatchFailsResult(t *testing.T) {
	path := writeScenario(t, `
name: mismatch
description: "Wrong expectations are reported, not returned"
schema: customers.cue
flow:
  - op: deleteByKey
    table: customers
    key: 1
  - op: insertMany
    table: customers
    records:
      - name: Alice
    expect:
      status: ERROR
  - op: getAll
    table: customers
    expect:
      status: SUCCESS
      records:
        - id: 1
          name: Bob
  - op: getAll
    table: nope
    expect:
      status: ERROR
      error: NotFoundError
assertions:
  - type: record_count
    table: customers
    count: 2
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "flow[0] deleteByKey: expected SUCCESS, got error")
	assert.Contains(t, result.Errors[1], "flow[1] insertMany: expected ERROR, got SUCCESS")
	assert.Contains(t, result.Errors[2], "records mismatch")
	assert.Contains(t, result.Errors[3], "expected NotFoundError, got TransactionError")
	assert.Contains(t, result.Errors[4], "assertions[0]")
}

func TestRun_SetupFailureIsError(t *testing.T) {
	path := writeScenario(t, `
name: setup_failure
description: "Setup steps must succeed"
schema: customers.cue
setup:
  - op: deleteByKey
    table: customers
    key: 1
flow:
  - op: getAll
    table: customers
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup step 0 (deleteByKey)")
	assert.ErrorIs(t, err, asyncdb.ErrNotFound)
}

func TestRun_MalformedKeyIsError(t *testing.T) {
	path := writeScenario(t, `
name: bool_key
description: "Booleans are not keys"
schema: customers.cue
flow:
  - op: deleteByKey
    table: customers
    key: true
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow step 0 (deleteByKey)")
}

func TestSnapshot(t *testing.T) {
	trace := []TraceEvent{
		{Seq: 1, Type: EventCall, Op: OpDeleteByKey, Table: "customers", Args: record.Object{"key": record.Int(7)}},
		{Seq: 2, Type: EventSettle, Op: OpDeleteByKey, Table: "customers", Status: asyncdb.StatusError, Error: asyncdb.KindNotFound},
	}

	got, err := Snapshot("snap", trace)
	require.NoError(t, err)
	assert.Equal(t, `{"events":2,"scenario":"snap"}
{"args":{"key":7},"op":"deleteByKey","seq":1,"table":"customers","type":"call"}
{"error":"NotFoundError","op":"deleteByKey","seq":2,"status":"ERROR","table":"customers","type":"settle"}
`, string(got))
}
