// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txnpb

import "github.com/cockroachdb/txnkit/pkg/util/hlc"

// BeginTransactionRequest explicitly begins a transaction on a session.
// The coordinator uses it on retries, where the raised priority must
// reach the service before any read re-acquires locks.
type BeginTransactionRequest struct {
	Session string
	Options TransactionOptions
}

// ReadRequest reads rows from a table through the transaction named by
// the selector.
type ReadRequest struct {
	Session  string
	Selector TransactionSelector
	Table    string
	Key      []byte
	Columns  []string
}

// ExecuteSQLRequest runs a SQL statement, including DML, through the
// transaction named by the selector.
type ExecuteSQLRequest struct {
	Session  string
	Selector TransactionSelector
	SQL      string
}

// Row is one result row. Values are encoded by the service; the
// coordinator never interprets them.
type Row [][]byte

// ResultSet is the response to a read or execute request.
type ResultSet struct {
	Rows []Row
	// Transaction is populated when the request's selector began a
	// transaction inline.
	Transaction *Transaction
}

// CommitRequest commits the named transaction.
type CommitRequest struct {
	Session       string
	TransactionID []byte
}

// CommitResponse reports the timestamp the transaction committed at.
type CommitResponse struct {
	CommitTimestamp hlc.Timestamp
}

// RollbackRequest rolls back the named transaction. Rollback of an
// already-aborted transaction is a no-op on the service side.
type RollbackRequest struct {
	Session       string
	TransactionID []byte
}
