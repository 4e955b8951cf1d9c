// Package harness runs scenarios of record operations against a fresh
// database and checks the outcome.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schema: ../schemas/customers.cue   # relative to the scenario file
//	setup:
//	  - op: insertMany
//	    table: customers
//	    records: [{name: Alice}]
//	flow:
//	  - op: updateByKey
//	    table: customers
//	    key: 1
//	    patch: {age: 31}
//	    expect:
//	      status: SUCCESS
//	assertions:
//	  - type: trace_order
//	    ops: [insertMany, updateByKey]
//	  - type: final_state
//	    table: customers
//	    where: {id: 1}
//	    expect: {age: 31}
//
// Operations: insertMany, getAll, getOrderedRange, updateByKey, deleteByKey,
// upsert, dropDatabase and reopen. The database is opened from the schema
// before setup runs.
//
// # Assertion Types
//
//   - trace_contains: an operation on a table appears in the trace
//   - trace_order: operations appear in the given order
//   - trace_count: an operation appears exactly N times
//   - final_state: a record matching where has the expected fields
//   - record_count: a table holds exactly N records
//
// # Deterministic Traces
//
// Every run uses a fresh temporary directory, sequential connection and
// transaction IDs, and a logical clock for trace sequence numbers, so the
// canonical trace is byte-stable and can be compared with a golden file.
package harness
