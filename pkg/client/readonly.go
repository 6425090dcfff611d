// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package client

import (
	"context"

	"github.com/cockroachdb/txnkit/pkg/txnpb"
	"github.com/cockroachdb/txnkit/pkg/util/log"
	"github.com/cockroachdb/txnkit/pkg/util/syncutil"
)

// ReadOnlyTxn executes reads and queries against a snapshot chosen by a
// TimestampBound. It never locks, never aborts under contention, never
// retries, and never enters a commit or rollback protocol; the only
// failures it surfaces are terminal ones, such as a requested timestamp
// that has fallen behind the service's retention window.
//
// In single-use mode (DB.Single) each operation independently selects its
// own transaction context and no transaction id is ever created. In
// multi-use mode (DB.ReadOnly) the first operation begins a transaction
// inline, pinning the read timestamp, and every subsequent operation
// addresses that transaction by id so it observes exactly the same
// snapshot.
type ReadOnlyTxn struct {
	db       *DB
	sess     *Session
	bound    txnpb.TimestampBound
	multiUse bool
	// initErr reports invalid construction on the first operation, since
	// DB.Single has no error return.
	initErr error

	mu struct {
		syncutil.Mutex
		handle Handle
	}
}

// Handle returns the transaction handle. Empty for single-use mode and
// for a multi-use transaction that has not issued its first operation.
func (rot *ReadOnlyTxn) Handle() Handle {
	rot.mu.Lock()
	defer rot.mu.Unlock()
	return rot.mu.handle
}

// Bound returns the timestamp bound the transaction reads at.
func (rot *ReadOnlyTxn) Bound() txnpb.TimestampBound {
	return rot.bound
}

// Read reads columns of the row at key in table.
func (rot *ReadOnlyTxn) Read(
	ctx context.Context, table string, key []byte, columns []string,
) (*txnpb.ResultSet, error) {
	sel, err := rot.requestSelector()
	if err != nil {
		return nil, err
	}
	resp, err := rot.db.sender.Read(ctx, &txnpb.ReadRequest{
		Session:  rot.sess.name,
		Selector: sel,
		Table:    table,
		Key:      key,
		Columns:  columns,
	})
	return rot.finishRequest(ctx, resp, err)
}

// Query runs a SQL query. Mutating statements are the read-write
// transaction's business; the service rejects them on a read-only
// transaction.
func (rot *ReadOnlyTxn) Query(ctx context.Context, sql string) (*txnpb.ResultSet, error) {
	sel, err := rot.requestSelector()
	if err != nil {
		return nil, err
	}
	resp, err := rot.db.sender.ExecuteSQL(ctx, &txnpb.ExecuteSQLRequest{
		Session:  rot.sess.name,
		Selector: sel,
		SQL:      sql,
	})
	return rot.finishRequest(ctx, resp, err)
}

func (rot *ReadOnlyTxn) requestSelector() (txnpb.TransactionSelector, error) {
	if rot.initErr != nil {
		return txnpb.TransactionSelector{}, rot.initErr
	}
	if !rot.multiUse {
		return makeSingleUseSelector(rot.bound)
	}
	rot.mu.Lock()
	defer rot.mu.Unlock()
	if rot.mu.handle.IsEmpty() {
		return makeBeginSelector(txnpb.ReadOnly, rot.bound, 0)
	}
	return makeIDSelector(rot.mu.handle)
}

func (rot *ReadOnlyTxn) finishRequest(
	ctx context.Context, resp *txnpb.ResultSet, err error,
) (*txnpb.ResultSet, error) {
	if err != nil {
		return nil, err
	}
	if rot.multiUse && resp.Transaction != nil {
		rot.mu.Lock()
		if rot.mu.handle.IsEmpty() {
			rot.mu.handle = Handle{
				id:            resp.Transaction.ID,
				readTimestamp: resp.Transaction.ReadTimestamp,
				mode:          txnpb.ReadOnly,
			}
			log.VEventf(ctx, 2, "read-only transaction pinned: %s", rot.mu.handle)
		}
		rot.mu.Unlock()
	}
	return resp, nil
}
