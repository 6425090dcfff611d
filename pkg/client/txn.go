// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package client

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/txnkit/pkg/txnpb"
	"github.com/cockroachdb/txnkit/pkg/util/log"
	"github.com/cockroachdb/txnkit/pkg/util/syncutil"
)

// asyncRollbackTimeout is the budget for rolling back a live transaction
// whose caller's ctx is already dead. The rollback only releases locks
// held server-side, so it runs on a background context rather than being
// dropped.
const asyncRollbackTimeout = time.Minute

// keepAliveSQL is the no-op statement the idle watchdog issues to keep a
// quiet transaction from being idle-aborted by the service.
const keepAliveSQL = "SELECT 1"

// txnState tracks one transaction attempt through its lifecycle. Aborted
// is terminal for the attempt but not for the logical transaction, which
// loops back to a new attempt in stateBeginning.
type txnState int32

const (
	stateIdle txnState = iota
	stateBeginning
	stateActive
	stateCommitting
	stateCommitted
	stateAborted
	stateRolledBack
	stateFailed
)

// String implements fmt.Stringer.
func (s txnState) String() string {
	return redact.StringWithoutMarkers(s)
}

// SafeFormat implements the redact.SafeFormatter interface.
func (s txnState) SafeFormat(w redact.SafePrinter, _ rune) {
	switch s {
	case stateIdle:
		w.SafeString("idle")
	case stateBeginning:
		w.SafeString("beginning")
	case stateActive:
		w.SafeString("active")
	case stateCommitting:
		w.SafeString("committing")
	case stateCommitted:
		w.SafeString("committed")
	case stateAborted:
		w.SafeString("aborted")
	case stateRolledBack:
		w.SafeString("rolled-back")
	case stateFailed:
		w.SafeString("failed")
	default:
		w.Printf("state(%d)", int32(s))
	}
}

// legalTransitions enumerates the state machine's edges. Anything else is
// a coordinator bug.
var legalTransitions = map[txnState][]txnState{
	stateIdle:       {stateBeginning},
	stateBeginning:  {stateActive, stateAborted, stateFailed},
	stateActive:     {stateCommitting, stateAborted, stateRolledBack, stateFailed},
	stateCommitting: {stateCommitted, stateAborted, stateFailed},
}

// Txn is one attempt of a read-write transaction. It is handed to the
// function passed to DB.Txn, which issues reads, queries, and mutations
// through it. A Txn is not safe for concurrent use by multiple
// goroutines.
//
// The attempt's transaction is begun inline by the first read or query on
// the first attempt, and explicitly before the function runs on retries,
// so the raised lock priority reaches the service before any lock is
// re-acquired.
type Txn struct {
	db        *DB
	sess      *Session
	debugName string
	// priority is the attempt's lock priority: the number of consecutive
	// aborts this logical transaction has suffered. Zero on a fresh
	// logical transaction.
	priority int32
	watchdog *idleWatchdog

	mu struct {
		syncutil.Mutex
		state  txnState
		handle Handle
		// abortErr is the first abort-class error observed by any request
		// on this attempt. Once set, the attempt must never commit, even
		// if the caller's function swallowed the error.
		abortErr error
	}
}

func newTxn(db *DB, sess *Session, debugName string, attempt int) *Txn {
	txn := &Txn{db: db, sess: sess, debugName: debugName, priority: int32(attempt)}
	txn.mu.state = stateIdle
	return txn
}

// Handle returns the attempt's transaction handle. Empty until the
// transaction has been begun, explicitly or inline.
func (txn *Txn) Handle() Handle {
	txn.mu.Lock()
	defer txn.mu.Unlock()
	return txn.mu.handle
}

// DebugName returns the name labeling this transaction in logs.
func (txn *Txn) DebugName() string {
	return txn.debugName
}

// SecondsSinceLastActivity returns how long the attempt has gone without
// dispatching a read or query, as tracked by the idle watchdog. Zero when
// the watchdog is disabled.
func (txn *Txn) SecondsSinceLastActivity() float64 {
	if txn.watchdog == nil {
		return 0
	}
	return txn.watchdog.SecondsSinceLastActivity()
}

// Read reads columns of the row at key in table through the transaction.
func (txn *Txn) Read(
	ctx context.Context, table string, key []byte, columns []string,
) (*txnpb.ResultSet, error) {
	sel, err := txn.requestSelector()
	if err != nil {
		return nil, err
	}
	resp, err := txn.db.sender.Read(ctx, &txnpb.ReadRequest{
		Session:  txn.sess.name,
		Selector: sel,
		Table:    table,
		Key:      key,
		Columns:  columns,
	})
	return txn.finishRequest(ctx, resp, err)
}

// Query runs a SQL statement, including DML, through the transaction.
func (txn *Txn) Query(ctx context.Context, sql string) (*txnpb.ResultSet, error) {
	sel, err := txn.requestSelector()
	if err != nil {
		return nil, err
	}
	resp, err := txn.db.sender.ExecuteSQL(ctx, &txnpb.ExecuteSQLRequest{
		Session:  txn.sess.name,
		Selector: sel,
		SQL:      sql,
	})
	return txn.finishRequest(ctx, resp, err)
}

// requestSelector resolves the selector for the next read or query and
// marks the attempt active.
func (txn *Txn) requestSelector() (txnpb.TransactionSelector, error) {
	txn.mu.Lock()
	defer txn.mu.Unlock()
	if txn.mu.abortErr != nil {
		// No request is issued through an attempt that already observed
		// an abort; the caller's function should have propagated it.
		return txnpb.TransactionSelector{}, txn.mu.abortErr
	}
	if s := txn.mu.state; s != stateActive {
		return txnpb.TransactionSelector{}, txnpb.NewConfigurationErrorf(
			"transaction used outside its function (state %s)", s)
	}
	if txn.watchdog != nil {
		txn.watchdog.touch()
	}
	if txn.mu.handle.IsEmpty() {
		return makeBeginSelector(txnpb.ReadWrite, txnpb.StrongRead(), txn.priority)
	}
	return makeIDSelector(txn.mu.handle)
}

// finishRequest classifies the outcome of a read or query and adopts an
// inline-begun transaction from the response.
func (txn *Txn) finishRequest(
	ctx context.Context, resp *txnpb.ResultSet, err error,
) (*txnpb.ResultSet, error) {
	if err != nil {
		if txnpb.IsTransactionAborted(err) {
			txn.noteAbort(ctx, err)
		}
		return nil, err
	}
	if resp.Transaction != nil {
		txn.mu.Lock()
		if txn.mu.handle.IsEmpty() {
			txn.mu.handle = Handle{
				id:            resp.Transaction.ID,
				readTimestamp: resp.Transaction.ReadTimestamp,
				mode:          txnpb.ReadWrite,
			}
			log.VEventf(ctx, 2, "began inline: %s", txn.mu.handle)
		}
		txn.mu.Unlock()
	}
	return resp, nil
}

// noteAbort records an abort-class error and moves the attempt to
// stateAborted. The handle is dead server-side; no rollback is owed.
func (txn *Txn) noteAbort(ctx context.Context, err error) {
	txn.mu.Lock()
	defer txn.mu.Unlock()
	if txn.mu.abortErr != nil {
		return
	}
	txn.mu.abortErr = err
	txn.transitionLocked(stateAborted)
	log.VEventf(ctx, 2, "attempt aborted: %v", err)
}

// exec runs one attempt end to end: begin, run fn, then commit or
// classify the failure. The session gate is held for the duration, so a
// session carries at most one in-flight attempt at a time; backoff sleeps
// between attempts happen in the caller with the gate released.
func (txn *Txn) exec(ctx context.Context, fn func(context.Context, *Txn) error) (TxnResult, error) {
	txn.sess.mu.Lock()
	defer txn.sess.mu.Unlock()

	if err := txn.begin(ctx); err != nil {
		return TxnResult{}, err
	}

	if txn.db.cfg.IdleThreshold > 0 {
		txn.watchdog = newIdleWatchdog(txn.db.clock, txn.db.cfg.IdleThreshold, txn.keepAlive)
		txn.watchdog.start(ctx)
		// Deferred so a panicking fn cannot leak the goroutine; once the
		// attempt leaves Active the keep-alive no-ops.
		defer txn.watchdog.stop()
	}
	err := fn(ctx, txn)

	if err == nil {
		// A swallowed abort still poisons the attempt: committing after
		// an observed abort is forbidden.
		txn.mu.Lock()
		err = txn.mu.abortErr
		txn.mu.Unlock()
	}
	if err != nil {
		if txnpb.IsTransactionAborted(err) {
			txn.noteAbort(ctx, err)
			return TxnResult{}, err
		}
		txn.rollbackOnError(ctx, err)
		return TxnResult{}, err
	}
	return txn.commit(ctx)
}

// begin moves the attempt from idle to active. The first attempt defers
// to an inline begin by its first request; retries begin explicitly so
// the raised priority reaches the service up front.
func (txn *Txn) begin(ctx context.Context) error {
	txn.mu.Lock()
	txn.transitionLocked(stateBeginning)
	txn.mu.Unlock()

	if txn.priority == 0 {
		txn.mu.Lock()
		txn.transitionLocked(stateActive)
		txn.mu.Unlock()
		return nil
	}

	opts := txnpb.TransactionOptions{Mode: txnpb.ReadWrite, Priority: txn.priority}
	proto, err := txn.db.sender.BeginTransaction(ctx, &txnpb.BeginTransactionRequest{
		Session: txn.sess.name,
		Options: opts,
	})
	if err != nil {
		txn.mu.Lock()
		defer txn.mu.Unlock()
		if txnpb.IsTransactionAborted(err) {
			txn.mu.abortErr = err
			txn.transitionLocked(stateAborted)
		} else {
			txn.transitionLocked(stateFailed)
		}
		return err
	}

	txn.mu.Lock()
	defer txn.mu.Unlock()
	txn.mu.handle = Handle{id: proto.ID, mode: txnpb.ReadWrite}
	txn.transitionLocked(stateActive)
	log.VEventf(ctx, 2, "began explicitly at priority %d: %s", txn.priority, txn.mu.handle)
	return nil
}

// commit finalizes a clean attempt. An attempt that issued no requests
// has nothing server-side to commit and succeeds with no timestamp.
func (txn *Txn) commit(ctx context.Context) (TxnResult, error) {
	txn.mu.Lock()
	handle := txn.mu.handle
	txn.transitionLocked(stateCommitting)
	txn.mu.Unlock()

	if handle.IsEmpty() {
		txn.mu.Lock()
		txn.transitionLocked(stateCommitted)
		txn.mu.Unlock()
		return TxnResult{}, nil
	}

	resp, err := txn.db.sender.Commit(ctx, &txnpb.CommitRequest{
		Session:       txn.sess.name,
		TransactionID: handle.ID(),
	})
	if err != nil {
		if txnpb.IsTransactionAborted(err) {
			// The service guarantees a commit that aborts modified no
			// data; the retry re-executes the whole function.
			txn.noteAbort(ctx, err)
		} else {
			txn.mu.Lock()
			txn.transitionLocked(stateFailed)
			txn.mu.Unlock()
		}
		return TxnResult{}, err
	}

	txn.mu.Lock()
	txn.transitionLocked(stateCommitted)
	txn.mu.Unlock()
	return TxnResult{CommitTimestamp: resp.CommitTimestamp}, nil
}

// rollbackOnError releases the attempt's live transaction, if any, after
// a terminal failure. Cancellation rolls the attempt back on a background
// context since the caller's is already dead; it is the one terminal
// state reached by explicit caller choice rather than failure.
func (txn *Txn) rollbackOnError(ctx context.Context, cause error) {
	txn.mu.Lock()
	if txn.mu.state != stateActive {
		// The attempt already aborted; the handle is dead server-side and
		// no rollback is owed.
		txn.mu.Unlock()
		return
	}
	handle := txn.mu.handle
	canceled := ctx.Err() != nil || errors.Is(cause, context.Canceled)
	if canceled {
		txn.transitionLocked(stateRolledBack)
	} else {
		txn.transitionLocked(stateFailed)
	}
	txn.mu.Unlock()

	if handle.IsEmpty() {
		return
	}
	txn.db.metrics.Rollbacks.Inc()
	req := &txnpb.RollbackRequest{Session: txn.sess.name, TransactionID: handle.ID()}
	if !canceled {
		if err := txn.db.sender.Rollback(ctx, req); err != nil {
			log.Errorf(ctx, "failure rolling back transaction: %v; rollback caused by: %v", err, cause)
		}
		return
	}
	// ctx is dead; roll back on a background context so the service
	// releases the locks promptly rather than waiting for an idle abort.
	go func() {
		rbCtx, cancel := context.WithTimeout(context.Background(), asyncRollbackTimeout)
		defer cancel()
		if err := txn.db.sender.Rollback(rbCtx, req); err != nil {
			log.Errorf(rbCtx, "failure rolling back canceled transaction %s: %v", txn.debugName, err)
		}
	}()
}

// keepAlive issues the watchdog's no-op query on the live transaction.
// Advisory only: errors are logged and ignored, and the attempt's state
// does not change.
func (txn *Txn) keepAlive(ctx context.Context) {
	txn.mu.Lock()
	handle := txn.mu.handle
	ok := txn.mu.state == stateActive && txn.mu.abortErr == nil && !handle.IsEmpty()
	txn.mu.Unlock()
	if !ok {
		return
	}
	sel, err := makeIDSelector(handle)
	if err != nil {
		return
	}
	txn.db.metrics.KeepAlives.Inc()
	log.VEventf(ctx, 1, "idle transaction; issuing keep-alive")
	if _, err := txn.db.sender.ExecuteSQL(ctx, &txnpb.ExecuteSQLRequest{
		Session:  txn.sess.name,
		Selector: sel,
		SQL:      keepAliveSQL,
	}); err != nil {
		log.VEventf(ctx, 1, "keep-alive failed (ignored): %v", err)
	}
}

func (txn *Txn) transitionLocked(to txnState) {
	txn.mu.AssertHeld()
	from := txn.mu.state
	for _, ok := range legalTransitions[from] {
		if ok == to {
			txn.mu.state = to
			return
		}
	}
	panic(errors.AssertionFailedf("illegal transaction state transition: %s -> %s", from, to))
}
