// Package queryir describes ordered reads independently of the storage
// backend that executes them.
//
// A Scan names a source (an object store, or an index of one), an optional
// KeyRange, a Direction, an optional result cap and an optional resume
// position. Backends compile a Scan into their own query language; the SQL
// backend lives in internal/querysql.
//
//	[engine request] → [Scan] → [querysql] → [SQLite]
//
// Keys inside a Scan are record.Key values. Positions are carried in their
// encoded form (record.EncodeKey) because backends resume by comparing
// encodings, never decoded values.
//
// INVARIANTS:
//   - A KeyRange built by the constructors in this package is non-empty
//     (lower <= upper, and lower < upper when either end is open).
//   - Direction is one of next, nextunique, prev, prevunique.
//   - Unique directions only affect index scans; object store keys are
//     already unique.
package queryir
