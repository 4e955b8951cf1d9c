package engine

import (
	"errors"
	"fmt"
)

// ErrorName categorizes engine failures. Names follow the DOMException names
// used by browser storage engines so callers can match on them portably.
type ErrorName string

const (
	// ConstraintError indicates a key or unique index collision.
	ConstraintError ErrorName = "ConstraintError"

	// DataError indicates a value or key the engine cannot store.
	DataError ErrorName = "DataError"

	// NotFoundError indicates a missing object store or index.
	NotFoundError ErrorName = "NotFoundError"

	// VersionError indicates an open at a version below the stored one.
	VersionError ErrorName = "VersionError"

	// InvalidStateError indicates an operation on a closed or finished object.
	InvalidStateError ErrorName = "InvalidStateError"

	// ReadOnlyError indicates a write inside a read-only transaction.
	ReadOnlyError ErrorName = "ReadOnlyError"

	// TransactionInactiveError indicates a request issued outside the
	// transaction's active window.
	TransactionInactiveError ErrorName = "TransactionInactiveError"

	// AbortError indicates the transaction was aborted.
	AbortError ErrorName = "AbortError"

	// InvalidAccessError indicates an invalid transaction scope or mode.
	InvalidAccessError ErrorName = "InvalidAccessError"

	// SyntaxError indicates a malformed key path.
	SyntaxError ErrorName = "SyntaxError"

	// UnknownError indicates a storage failure.
	UnknownError ErrorName = "UnknownError"
)

// ErrStopped is wrapped by every failure caused by the engine shutting down.
var ErrStopped = errors.New("engine stopped")

// Error is an engine failure reported through OnError callbacks or returned
// synchronously by request constructors.
type Error struct {
	// Name identifies the error category.
	Name ErrorName

	// Message is a human-readable description.
	Message string

	// Err is the underlying storage error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// Unwrap returns the underlying storage error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by name, so errors.Is(err, &Error{Name: DataError})
// works on wrapped errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Name == e.Name
}

// HasName reports whether err wraps an engine *Error with the given name.
// Uses errors.As to handle wrapped errors.
func HasName(err error, name ErrorName) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Name == name
	}
	return false
}

func newError(name ErrorName, format string, args ...any) *Error {
	return &Error{Name: name, Message: fmt.Sprintf(format, args...)}
}

func stoppedError(name ErrorName) *Error {
	return &Error{Name: name, Message: "the engine stopped", Err: ErrStopped}
}

func wrapError(name ErrorName, err error) *Error {
	return &Error{Name: name, Message: err.Error(), Err: err}
}
