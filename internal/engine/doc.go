// Package engine implements a versioned, transactional key-value storage
// engine with an event-driven, callback-based API.
//
// ARCHITECTURE:
//
// Single-Goroutine Event Loop:
// Every engine object (Database, Transaction, Request, ObjectStore, Index,
// Cursor) is confined to the loop goroutine started by Factory.Run. The only
// thread-safe entry point is Factory.Post, which queues a task for the loop.
// Callbacks registered on engine objects always run on the loop.
//
// Request Processing Flow:
// 1. A task creates a Transaction and issues requests against its stores
// 2. The transaction waits for its turn in the per-database job queue
// 3. Requests execute in submission order, one at a time, against SQLite
// 4. Each outcome is delivered as its own task (OnSuccess or OnError)
// 5. Once no requests remain after a task, the transaction commits
//
// A transaction is active only while the task that created it runs and
// while one of its request callbacks runs. Requests issued at any other time
// fail with TransactionInactiveError.
//
// A failed request aborts its transaction: the request's OnError runs, then
// the transaction's OnError, then every queued request fails with AbortError,
// then OnAbort runs. Nothing the transaction wrote is kept.
//
// Schema changes (CreateObjectStore, CreateIndex) are only legal inside the
// upgrade transaction delivered by OpenRequest.OnUpgradeNeeded. They are
// validated synchronously and applied in order with the transaction's other
// requests.
//
// CRITICAL PATTERNS:
//
// Per-Database FIFO:
// Opens, transactions and deletes of one database run strictly one after
// another in creation order. This serializes every pair of jobs, which is
// always a valid outcome of read/write scope scheduling.
//
// Logical Clock:
// Requests are stamped with a monotonic sequence number from Clock.Next()
// for log correlation.
package engine
