package harness

import (
	"github.com/roach88/asyncdb/internal/asyncdb"
	"github.com/roach88/asyncdb/internal/record"
)

// Trace event types.
const (
	EventCall   = "call"
	EventSettle = "settle"
)

// TraceEvent is one operation call or settlement.
type TraceEvent struct {
	Seq   int64
	Type  string // EventCall or EventSettle
	Op    string
	Table string

	// Args holds the call's arguments (calls only).
	Args record.Object

	// Status, Result, Error and Cause describe a settlement. Error is the
	// adapter error kind; Cause is the engine error name beneath it.
	Status asyncdb.Status
	Result record.Value
	Error  asyncdb.Kind
	Cause  string
}

// Canonical returns the event as a record object for canonical JSON.
// Empty fields are omitted.
func (e TraceEvent) Canonical() record.Object {
	obj := record.Object{
		"seq":  record.Int(e.Seq),
		"type": record.String(e.Type),
		"op":   record.String(e.Op),
	}
	if e.Table != "" {
		obj["table"] = record.String(e.Table)
	}
	if e.Args != nil {
		obj["args"] = e.Args
	}
	if e.Status != "" {
		obj["status"] = record.String(e.Status)
	}
	if e.Result != nil {
		obj["result"] = e.Result
	}
	if e.Error != "" {
		obj["error"] = record.String(e.Error)
	}
	if e.Cause != "" {
		obj["cause"] = record.String(e.Cause)
	}
	return obj
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool

	// Trace holds every call and settlement in order.
	Trace []TraceEvent

	// Errors describes every failed expectation.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
