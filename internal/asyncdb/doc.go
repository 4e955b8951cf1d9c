// Package asyncdb adapts the callback-driven storage engine to futures.
//
// A Handle owns one connection. Every operation posts its engine work onto
// the engine loop and returns a Future that settles exactly once, with a
// value or with an *Error whose Kind names the failure:
//
//	ConnectionError  engine unavailable or no open connection
//	OpenError        open request failed or version conflict
//	SchemaError      invalid table or index spec during upgrade
//	TransactionError any request or transaction failure
//	NotFoundError    update or delete target key absent
//
// Ordering:
//   - Open resolves only after the upgrade transaction, if any, completes.
//   - The schema migrator creates table i+1 only after the engine has
//     acknowledged every schema change of table i.
//   - InsertMany adds record i+1 only from the success callback of record i,
//     and resolves only when the transaction commits.
//   - Mutations (UpdateByKey, DeleteByKey, Upsert) resolve on commit.
//
// Futures must not be awaited from inside engine callbacks: the loop would
// wait on itself.
package asyncdb
