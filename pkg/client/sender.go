// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package client

import (
	"context"

	"github.com/cockroachdb/txnkit/pkg/txnpb"
)

// Sender is the transport collaborator the coordinator drives. An
// implementation typically wraps a gRPC stub bound to one database;
// tests substitute in-process fakes.
//
// The coordinator holds the narrow end of the contract: it never issues
// the same request twice within one attempt, retries always go through a
// newly begun transaction, and in-flight cancellation is the transport's
// job via the request context. Errors may be structured txnpb errors or
// gRPC status errors; both classify identically.
type Sender interface {
	// BeginTransaction explicitly begins a transaction on a session.
	BeginTransaction(context.Context, *txnpb.BeginTransactionRequest) (*txnpb.Transaction, error)
	// Read reads rows through the transaction named by the request's
	// selector. The response carries the inline-begun Transaction when
	// the selector asked for one.
	Read(context.Context, *txnpb.ReadRequest) (*txnpb.ResultSet, error)
	// ExecuteSQL runs a SQL statement, including DML, through the
	// transaction named by the request's selector.
	ExecuteSQL(context.Context, *txnpb.ExecuteSQLRequest) (*txnpb.ResultSet, error)
	// Commit commits the named transaction. An abort-class error
	// guarantees no data was modified.
	Commit(context.Context, *txnpb.CommitRequest) (*txnpb.CommitResponse, error)
	// Rollback rolls back the named transaction.
	Rollback(context.Context, *txnpb.RollbackRequest) error
}
