package asyncdb

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes adapter failures.
type Kind string

const (
	// KindConnection indicates the engine is unavailable or the handle has
	// no open connection.
	KindConnection Kind = "ConnectionError"

	// KindOpen indicates the open request failed.
	KindOpen Kind = "OpenError"

	// KindSchema indicates an invalid TableSpec or IndexSpec.
	KindSchema Kind = "SchemaError"

	// KindTransaction indicates a request or transaction failure.
	KindTransaction Kind = "TransactionError"

	// KindNotFound indicates the target key of an update or delete is absent.
	KindNotFound Kind = "NotFoundError"
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrConnection  = &Error{Kind: KindConnection}
	ErrOpen        = &Error{Kind: KindOpen}
	ErrSchema      = &Error{Kind: KindSchema}
	ErrTransaction = &Error{Kind: KindTransaction}
	ErrNotFound    = &Error{Kind: KindNotFound}
)

// Error is the failure a Future rejects with.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Op is the operation that failed, e.g. "insertMany".
	Op string

	// Table is the table the operation targeted, if any.
	Table string

	// Message is a human-readable description.
	Message string

	// Err is the underlying engine error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		if e.Table != "" {
			b.WriteString(" " + e.Table)
		}
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying engine error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Table == "" && t.Message == "" && t.Err == nil
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, op, table, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Table: table, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, op, table string, err error) *Error {
	return &Error{Kind: kind, Op: op, Table: table, Err: err}
}
