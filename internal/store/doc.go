// Package store provides the SQLite-backed physical layer of the engine.
//
// One SQLite database holds one engine database. The layout is fixed and
// shared by every object store:
//   - database_meta: the engine-visible database version
//   - object_stores: catalog of object stores (key path, key generator)
//   - indexes: catalog of indexes per object store
//   - records: every record, keyed by (store, encoded primary key)
//   - index_entries: derived index keys, keyed by (store, idx, key, primary_key)
//
// Schema changes are therefore catalog rows, which makes them part of the
// surrounding SQL transaction: an aborted upgrade leaves no trace.
//
// # Critical Patterns
//
// Keys are stored in their order-preserving encoding (record.EncodeKey).
// Every ordered read compares BLOBs, never decoded values.
//
// Values use the lossless binary form of record.EncodeValue, optionally snappy
// compressed. The first byte of every stored value names its codec and payload
// format, so a database written with one compression setting stays readable
// under another, and older canonical JSON values still decode.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Catalog deletes cascade to records and index entries
//
// The driver is chosen by configuration: "sqlite3" (github.com/mattn/go-sqlite3,
// cgo) or "sqlite" (modernc.org/sqlite, pure Go). Both are registered by this
// package.
package store
