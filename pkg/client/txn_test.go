// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package client

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnkit/pkg/txnpb"
	"github.com/cockroachdb/txnkit/pkg/util/hlc"
	"github.com/cockroachdb/txnkit/pkg/util/leaktest"
	"github.com/cockroachdb/txnkit/pkg/util/retry"
	"github.com/cockroachdb/txnkit/pkg/util/timeutil"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// testConfig returns a Config with backoffs small enough for tests and
// the idle watchdog disabled. Tests that exercise the watchdog or the
// clock override the relevant fields.
func testConfig() Config {
	return Config{
		RetryOptions: retry.Options{
			InitialBackoff: 1 * time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		},
		IdleThreshold: -1,
	}
}

// abortCommits makes the sender abort its first n commits.
func abortCommits(s *fakeSender, n int) {
	remaining := n
	s.onCommit = func(req *txnpb.CommitRequest) (*txnpb.CommitResponse, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if remaining > 0 {
			remaining--
			return nil, &txnpb.TransactionAbortedError{}
		}
		s.mu.nextTS++
		return &txnpb.CommitResponse{
			CommitTimestamp: hlc.Timestamp{WallTime: s.mu.nextTS * 1e9},
		}, nil
	}
}

func TestTxnCommitsFirstAttempt(t *testing.T) {
	defer leaktest.AfterTest(t)()
	sender := &fakeSender{}
	db := NewDB(sender, testConfig())
	sess := db.NewSession("s1")

	var invocations int
	res, err := db.Txn(context.Background(), sess, func(ctx context.Context, txn *Txn) error {
		invocations++
		if _, err := txn.Query(ctx, "INSERT INTO t VALUES (1)"); err != nil {
			return err
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, invocations)
	require.Equal(t, 1, res.Attempts)
	require.Equal(t, hlc.Timestamp{WallTime: 1e9}, res.CommitTimestamp)

	// The first attempt begins inline at priority zero; no explicit
	// begin is issued.
	require.Equal(t, []int32{0}, sender.beginPriorities())
	execs := sender.recordedExecs()
	require.Len(t, execs, 1)
	require.Equal(t, txnpb.SelectorBegin, execs[0].Selector.Kind())
}

func TestTxnRetriesAbortsWithEscalatingPriority(t *testing.T) {
	defer leaktest.AfterTest(t)()
	const aborts = 3
	sender := &fakeSender{}
	abortCommits(sender, aborts)
	db := NewDB(sender, testConfig())
	sess := db.NewSession("s1")

	var invocations int
	res, err := db.Txn(context.Background(), sess, func(ctx context.Context, txn *Txn) error {
		invocations++
		_, err := txn.Query(ctx, "UPDATE t SET v = v + 1")
		return err
	})
	require.NoError(t, err)

	// N aborts produce exactly N+1 begins with priorities 0..N, and the
	// whole function re-executes every time: a commit abort never resumes
	// from partial state.
	require.Equal(t, aborts+1, invocations)
	require.Equal(t, aborts+1, res.Attempts)
	require.Equal(t, []int32{0, 1, 2, 3}, sender.beginPriorities())
	require.Equal(t, hlc.Timestamp{WallTime: 1e9}, res.CommitTimestamp)
}

func TestTxnAbortDuringReadRetries(t *testing.T) {
	defer leaktest.AfterTest(t)()
	sender := &fakeSender{}
	aborted := false
	sender.onRead = func(req *txnpb.ReadRequest) (*txnpb.ResultSet, error) {
		if !aborted {
			aborted = true
			return nil, &txnpb.TransactionAbortedError{}
		}
		return sender.defaultResult(req.Selector), nil
	}
	db := NewDB(sender, testConfig())
	sess := db.NewSession("s1")

	res, err := db.Txn(context.Background(), sess, func(ctx context.Context, txn *Txn) error {
		_, err := txn.Read(ctx, "t", []byte("a"), []string{"v"})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Attempts)
	require.Equal(t, []int32{1}, sender.beginPriorities())

	// No rollback is owed for an aborted attempt; the handle is dead
	// server-side.
	_, _, _, _, rollbacks := sender.counts()
	require.Zero(t, rollbacks)
}

func TestTxnSwallowedAbortNeverCommits(t *testing.T) {
	defer leaktest.AfterTest(t)()
	sender := &fakeSender{}
	aborted := false
	sender.onRead = func(req *txnpb.ReadRequest) (*txnpb.ResultSet, error) {
		if !aborted {
			aborted = true
			return nil, &txnpb.TransactionAbortedError{}
		}
		return sender.defaultResult(req.Selector), nil
	}
	db := NewDB(sender, testConfig())
	sess := db.NewSession("s1")

	var invocations int
	res, err := db.Txn(context.Background(), sess, func(ctx context.Context, txn *Txn) error {
		invocations++
		// Drop the read's error on the floor. The attempt is poisoned
		// regardless and must restart rather than commit.
		_, _ = txn.Read(ctx, "t", []byte("a"), []string{"v"})
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, invocations)
	require.Equal(t, 2, res.Attempts)
	_, _, _, commits, _ := sender.counts()
	require.Equal(t, 1, commits)
}

func TestTxnDeadlineExceeded(t *testing.T) {
	defer leaktest.AfterTest(t)()
	sender := &fakeSender{}
	sender.onCommit = func(*txnpb.CommitRequest) (*txnpb.CommitResponse, error) {
		return nil, &txnpb.TransactionAbortedError{}
	}
	db := NewDB(sender, testConfig())
	sess := db.NewSession("s1")

	deadline := timeutil.Now().Add(50 * time.Millisecond)
	var attemptTimes []time.Time
	res, err := db.TxnWithOptions(context.Background(), sess,
		TxnOptions{Deadline: deadline},
		func(ctx context.Context, txn *Txn) error {
			attemptTimes = append(attemptTimes, timeutil.Now())
			_, err := txn.Query(ctx, "UPDATE t SET v = 1")
			return err
		})
	require.Error(t, err)
	require.True(t, IsDeadlineExceeded(err))
	require.False(t, txnpb.IsTransactionAborted(err))
	require.Greater(t, res.Attempts, 1)

	// Every attempt started before the deadline, and nothing runs after
	// the loop gives up.
	for _, at := range attemptTimes {
		require.True(t, at.Before(deadline))
	}
	calls := sender.totalCalls()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, calls, sender.totalCalls())
}

func TestTxnTerminalErrorNoRetry(t *testing.T) {
	defer leaktest.AfterTest(t)()
	sender := &fakeSender{}
	readCount := 0
	sender.onRead = func(req *txnpb.ReadRequest) (*txnpb.ResultSet, error) {
		readCount++
		if readCount == 1 {
			return sender.defaultResult(req.Selector), nil
		}
		return nil, &txnpb.StaleReadError{
			ReadTimestamp: hlc.Timestamp{WallTime: 1e9},
			Earliest:      hlc.Timestamp{WallTime: 5e9},
		}
	}
	db := NewDB(sender, testConfig())
	sess := db.NewSession("s1")

	var invocations int
	_, err := db.Txn(context.Background(), sess, func(ctx context.Context, txn *Txn) error {
		invocations++
		if _, err := txn.Read(ctx, "t", []byte("a"), nil); err != nil {
			return err
		}
		_, err := txn.Read(ctx, "t", []byte("b"), nil)
		return err
	})
	require.Error(t, err)
	require.True(t, txnpb.IsStaleRead(err))
	require.Equal(t, 1, invocations)

	// The live handle is rolled back on the way out.
	rollbacks := sender.recordedRollbacks()
	require.Len(t, rollbacks, 1)
	require.Equal(t, []byte("txn-001"), rollbacks[0].TransactionID)
}

func TestTxnCancellationRollsBackOnce(t *testing.T) {
	defer leaktest.AfterTest(t)()
	sender := &fakeSender{}
	rolledBack := make(chan struct{})
	sender.onRollback = func(*txnpb.RollbackRequest) error {
		close(rolledBack)
		return nil
	}
	db := NewDB(sender, testConfig())
	sess := db.NewSession("s1")

	ctx, cancel := context.WithCancel(context.Background())
	_, err := db.Txn(ctx, sess, func(ctx context.Context, txn *Txn) error {
		if _, err := txn.Query(ctx, "UPDATE t SET v = 1"); err != nil {
			return err
		}
		cancel()
		return ctx.Err()
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))

	// Cancellation is a caller decision, not contention: exactly one
	// rollback, no retry. The rollback runs on a background context since
	// the caller's is dead.
	select {
	case <-rolledBack:
	case <-time.After(5 * time.Second):
		t.Fatal("rollback never issued")
	}
	begins, _, _, commits, rollbacks := sender.counts()
	require.Equal(t, 1, begins)
	require.Zero(t, commits)
	require.Equal(t, 1, rollbacks)
}

func TestTxnEmptyCommit(t *testing.T) {
	defer leaktest.AfterTest(t)()
	sender := &fakeSender{}
	db := NewDB(sender, testConfig())
	sess := db.NewSession("s1")

	// A function that issues no requests has nothing to commit.
	res, err := db.Txn(context.Background(), sess, func(context.Context, *Txn) error {
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Attempts)
	require.True(t, res.CommitTimestamp.IsEmpty())
	require.Zero(t, sender.totalCalls())
}

func TestTxnRetryDelayHint(t *testing.T) {
	defer leaktest.AfterTest(t)()
	const hint = 5 * time.Second
	mt := timeutil.NewManualTime(time.Unix(100, 0))
	sender := &fakeSender{}
	hinted := false
	sender.onCommit = func(req *txnpb.CommitRequest) (*txnpb.CommitResponse, error) {
		if !hinted {
			hinted = true
			return nil, &txnpb.TransactionAbortedError{RetryDelay: hint}
		}
		return &txnpb.CommitResponse{CommitTimestamp: hlc.Timestamp{WallTime: 7e9}}, nil
	}
	cfg := testConfig()
	cfg.Clock = mt
	db := NewDB(sender, cfg)
	sess := db.NewSession("s1")

	type outcome struct {
		res TxnResult
		err error
	}
	resC := make(chan outcome, 1)
	go func() {
		res, err := db.Txn(context.Background(), sess, func(ctx context.Context, txn *Txn) error {
			_, err := txn.Query(ctx, "UPDATE t SET v = 1")
			return err
		})
		resC <- outcome{res, err}
	}()

	// The deadline timer is armed at start; the hint sleep arms a second
	// timer. The runner must serve the service's delay, not the schedule
	// backoff, so nothing proceeds until the clock reaches it.
	waitForTimers(t, mt, 2)
	select {
	case o := <-resC:
		t.Fatalf("transaction finished before the hint elapsed: %+v", o)
	case <-time.After(10 * time.Millisecond):
	}
	mt.Advance(hint)

	o := <-resC
	require.NoError(t, o.err)
	require.Equal(t, 2, o.res.Attempts)
	require.Equal(t, hlc.Timestamp{WallTime: 7e9}, o.res.CommitTimestamp)
}

func TestTxnWriteAppliedOnceAcrossRetry(t *testing.T) {
	defer leaktest.AfterTest(t)()
	sender := &fakeSender{}

	// Writes buffer per transaction and apply at commit, so an aborted
	// attempt leaves no trace.
	applied := map[string]int{}
	pending := map[string][]string{}
	sender.onExec = func(req *txnpb.ExecuteSQLRequest) (*txnpb.ResultSet, error) {
		res := sender.defaultResult(req.Selector)
		id := req.Selector.ID()
		if res.Transaction != nil {
			id = res.Transaction.ID
		}
		sender.mu.Lock()
		pending[string(id)] = append(pending[string(id)], req.SQL)
		sender.mu.Unlock()
		return res, nil
	}
	commitAborts := 1
	sender.onCommit = func(req *txnpb.CommitRequest) (*txnpb.CommitResponse, error) {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		if commitAborts > 0 {
			commitAborts--
			delete(pending, string(req.TransactionID))
			return nil, &txnpb.TransactionAbortedError{}
		}
		for _, stmt := range pending[string(req.TransactionID)] {
			applied[stmt]++
		}
		delete(pending, string(req.TransactionID))
		return &txnpb.CommitResponse{CommitTimestamp: hlc.Timestamp{WallTime: 9e9}}, nil
	}

	db := NewDB(sender, testConfig())
	sess := db.NewSession("s1")
	res, err := db.Txn(context.Background(), sess, func(ctx context.Context, txn *Txn) error {
		_, err := txn.Query(ctx, "INSERT INTO t VALUES ('A')")
		return err
	})
	require.NoError(t, err)
	require.Equal(t, hlc.Timestamp{WallTime: 9e9}, res.CommitTimestamp)
	require.Equal(t, 2, res.Attempts)
	require.Equal(t, map[string]int{"INSERT INTO t VALUES ('A')": 1}, applied)
	require.Equal(t, []int32{0, 1}, sender.beginPriorities())
}

func TestTxnMetrics(t *testing.T) {
	defer leaktest.AfterTest(t)()
	const aborts = 2
	sender := &fakeSender{}
	abortCommits(sender, aborts)
	db := NewDB(sender, testConfig())
	sess := db.NewSession("s1")

	_, err := db.Txn(context.Background(), sess, func(ctx context.Context, txn *Txn) error {
		_, err := txn.Query(ctx, "UPDATE t SET v = 1")
		return err
	})
	require.NoError(t, err)

	m := db.Metrics()
	require.Equal(t, 1.0, testutil.ToFloat64(m.Commits))
	require.Equal(t, float64(aborts), testutil.ToFloat64(m.Aborts))
	require.Equal(t, 0.0, testutil.ToFloat64(m.Rollbacks))
	require.Equal(t, 0.0, testutil.ToFloat64(m.DeadlineExceeded))
}

func TestTxnNilSession(t *testing.T) {
	defer leaktest.AfterTest(t)()
	db := NewDB(&fakeSender{}, testConfig())
	_, err := db.Txn(context.Background(), nil, func(context.Context, *Txn) error {
		return nil
	})
	require.True(t, txnpb.IsConfiguration(err))
}

// waitForTimers blocks until at least n timers are armed on mt.
func waitForTimers(t *testing.T, mt *timeutil.ManualTime, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for len(mt.Timers()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d timers armed", len(mt.Timers()), n)
		}
		time.Sleep(time.Millisecond)
	}
}
