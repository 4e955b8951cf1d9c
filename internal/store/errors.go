package store

import "errors"

// Sentinel errors returned by Tx methods. The engine maps them onto its own
// error names.
var (
	ErrKeyExists         = errors.New("key already exists in object store")
	ErrUniqueViolation   = errors.New("unique index constraint violated")
	ErrNoObjectStore     = errors.New("object store not found")
	ErrObjectStoreExists = errors.New("object store already exists")
	ErrNoIndex           = errors.New("index not found")
	ErrIndexExists       = errors.New("index already exists")
	ErrKeyGenExhausted   = errors.New("key generator exhausted")
)
