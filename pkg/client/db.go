// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package client implements the client-side transaction coordinator: it
// begins, retries, commits, and rolls back transactions against a remote
// transaction service reached through a Sender.
//
// Read-write transactions are run by DB.Txn, which re-executes the
// caller's function with a fresh transaction on every abort, raising the
// transaction's lock priority each time, until it commits or the
// wall-clock retry budget runs out. Read-only transactions are run by
// DB.Single and DB.ReadOnly at a caller-chosen timestamp bound; they
// never lock, never abort under contention, and never commit.
package client

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/txnkit/pkg/txnpb"
	"github.com/cockroachdb/txnkit/pkg/util/hlc"
	"github.com/cockroachdb/txnkit/pkg/util/log"
	"github.com/cockroachdb/txnkit/pkg/util/retry"
	"github.com/cockroachdb/txnkit/pkg/util/syncutil"
	"github.com/cockroachdb/txnkit/pkg/util/timeutil"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Config configures a DB. The zero value is usable; setDefaults fills in
// production-grade tunables.
type Config struct {
	// Clock is the time source for deadlines, backoff hints, and the idle
	// watchdog. Tests substitute a timeutil.ManualTime.
	Clock timeutil.TimeSource
	// RetryOptions shapes the abort-retry backoff. Defaults: 1s initial,
	// 32s cap, 2x growth, full jitter. The retry loop is bounded by wall
	// clock, never by attempt count: contention can produce many
	// legitimate aborts in a short window, and capping attempts would
	// abort correct-but-unlucky transactions prematurely.
	RetryOptions retry.Options
	// DefaultTimeout is the wall-clock retry budget used when TxnOptions
	// carries no deadline. Default 2m.
	DefaultTimeout time.Duration
	// IdleThreshold is how long a read-write transaction may go without a
	// read or query before the coordinator issues an advisory keep-alive.
	// Default 10s; negative disables the keep-alive.
	IdleThreshold time.Duration
	// Registry receives the coordinator's metrics; nil leaves them
	// unregistered.
	Registry prometheus.Registerer
}

func (cfg *Config) setDefaults() {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.DefaultTimeSource{}
	}
	if cfg.RetryOptions.InitialBackoff == 0 {
		cfg.RetryOptions.InitialBackoff = 1 * time.Second
	}
	if cfg.RetryOptions.MaxBackoff == 0 {
		cfg.RetryOptions.MaxBackoff = 32 * time.Second
	}
	if cfg.RetryOptions.Multiplier == 0 {
		cfg.RetryOptions.Multiplier = 2
	}
	if cfg.RetryOptions.RandomizationFactor == 0 {
		cfg.RetryOptions.RandomizationFactor = 1
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 2 * time.Minute
	}
	if cfg.IdleThreshold == 0 {
		cfg.IdleThreshold = 10 * time.Second
	}
}

// DB is a handle to the transaction service through a Sender. Safe for
// concurrent use; per-transaction state lives in Txn and ReadOnlyTxn.
type DB struct {
	sender    Sender
	cfg       Config
	clock     timeutil.TimeSource
	metrics   *TxnMetrics
	warnEvery log.EveryN
}

// NewDB returns a DB sending requests through sender.
func NewDB(sender Sender, cfg Config) *DB {
	cfg.setDefaults()
	return &DB{
		sender:    sender,
		cfg:       cfg,
		clock:     cfg.Clock,
		metrics:   newTxnMetrics(cfg.Registry),
		warnEvery: log.Every(time.Second),
	}
}

// Metrics returns the coordinator's metrics.
func (db *DB) Metrics() *TxnMetrics {
	return db.metrics
}

// Session names a server-side session. A session supports one in-flight
// transaction attempt at a time; concurrent callers sharing a session
// serialize through the session's gate, held from begin to commit or
// abort of one attempt and released during backoff sleeps.
type Session struct {
	name string
	mu   syncutil.Mutex
}

// NewSession returns a session with the given name, or a generated one if
// name is empty.
func (db *DB) NewSession(name string) *Session {
	if name == "" {
		name = uuid.New().String()[:8]
	}
	return &Session{name: name}
}

// Name returns the session's name.
func (s *Session) Name() string {
	return s.name
}

// TxnOptions tunes one DB.TxnWithOptions call.
type TxnOptions struct {
	// Deadline bounds the whole retry loop by wall clock. Zero means
	// Config.DefaultTimeout from now. An earlier ctx deadline wins.
	Deadline time.Time
	// DebugName labels the transaction in logs; a short random name is
	// generated when empty.
	DebugName string
}

// TxnResult reports a committed transaction.
type TxnResult struct {
	// CommitTimestamp is the timestamp the transaction committed at, as
	// reported by the service. Empty if the transaction issued no
	// requests.
	CommitTimestamp hlc.Timestamp
	// Attempts is how many attempts ran, including the successful one.
	// Anything above 1 means the transaction was aborted under contention
	// and re-executed.
	Attempts int
}

// Txn runs fn inside a read-write transaction with default options,
// committing when fn returns nil. See TxnWithOptions.
func (db *DB) Txn(
	ctx context.Context, sess *Session, fn func(context.Context, *Txn) error,
) (TxnResult, error) {
	return db.TxnWithOptions(ctx, sess, TxnOptions{}, fn)
}

// TxnWithOptions runs fn inside a read-write transaction on sess. If fn
// returns nil the transaction is committed; the commit timestamp is
// returned in the TxnResult.
//
// fn may be invoked multiple times: whenever an attempt is aborted under
// contention — during a read, a query, or the commit itself, all of which
// guarantee no data was modified — the coordinator backs off and re-runs
// fn from the top with a fresh transaction of raised lock priority, until
// the deadline passes. fn must therefore be idempotent or free of side
// effects outside the transaction.
//
// All other failures are terminal and surface immediately: fn's own
// non-abort errors (after a best-effort rollback), stale-read and
// transport errors, and ctx cancellation. A transaction that exhausts its
// deadline fails with a DeadlineExceededError.
func (db *DB) TxnWithOptions(
	ctx context.Context, sess *Session, opts TxnOptions, fn func(context.Context, *Txn) error,
) (TxnResult, error) {
	if sess == nil {
		return TxnResult{}, txnpb.NewConfigurationErrorf("nil session")
	}
	debugName := opts.DebugName
	if debugName == "" {
		debugName = uuid.New().String()[:8]
	}
	ctx = logtags.AddTag(ctx, "s", sess.name)
	ctx = logtags.AddTag(ctx, "txn", debugName)

	deadline := opts.Deadline
	if deadline.IsZero() {
		deadline = db.clock.Now().Add(db.cfg.DefaultTimeout)
	}
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	// The deadline doubles as the retry loop's Closer: when it fires, a
	// backoff sleep in progress terminates and Next returns false.
	closer, stopCloser := db.deadlineCloser(deadline)
	defer stopCloser()
	retryOpts := db.cfg.RetryOptions
	retryOpts.Closer = closer

	begun := db.clock.Now()
	var attempts int
	var lastAbort error
	for r := retry.StartWithCtx(ctx, retryOpts); r.Next(); {
		// One comparison per iteration enforces the budget even when the
		// backoff sleep raced the deadline; no request is ever issued
		// after the deadline passes.
		if !db.clock.Now().Before(deadline) {
			break
		}
		attempts++
		// The priority rank is the count of consecutive aborts so far. It
		// deliberately does not track the backoff schedule, which resets
		// when a service hint serves the wait out of band.
		txn := newTxn(db, sess, debugName, attempts-1)
		res, err := txn.exec(ctx, fn)
		if err == nil {
			res.Attempts = attempts
			db.metrics.Commits.Inc()
			db.metrics.Restarts.Observe(float64(attempts - 1))
			db.metrics.Durations.Observe(db.clock.Since(begun).Seconds())
			log.VEventf(ctx, 1, "committed at %s after %d attempts", res.CommitTimestamp, attempts)
			return res, nil
		}
		if !txnpb.IsTransactionAborted(err) {
			db.metrics.Failures.Inc()
			return TxnResult{Attempts: attempts}, err
		}
		lastAbort = err
		db.metrics.Aborts.Inc()
		if db.warnEvery.ShouldLog() {
			log.Warningf(ctx, "transaction aborted on attempt %d; retrying: %v", attempts, err)
		}
		if hint, ok := txnpb.AbortRetryDelay(err); ok {
			// The service told us how long to wait; serve that wait here
			// and reset the schedule so Next doesn't add its own backoff
			// on top.
			log.VEventf(ctx, 2, "honoring retry-delay hint of %s", hint)
			if !db.sleep(ctx, hint, closer) {
				break
			}
			r.Reset()
		}
	}

	// The loop gave up: ctx canceled, or the deadline passed (directly or
	// via the Closer).
	if err := ctx.Err(); err != nil {
		db.metrics.Failures.Inc()
		return TxnResult{Attempts: attempts}, errors.Wrapf(err, "transaction %s", debugName)
	}
	db.metrics.DeadlineExceeded.Inc()
	log.Warningf(ctx, "giving up after %d attempts: retry budget exhausted", attempts)
	return TxnResult{Attempts: attempts}, &DeadlineExceededError{
		Deadline:  deadline,
		Attempts:  attempts,
		lastAbort: lastAbort,
	}
}

// ReadOnly runs fn inside a multi-use read-only transaction on sess at
// the given bound. The transaction's read timestamp is resolved by fn's
// first operation and every subsequent operation observes exactly that
// timestamp. There is no commit or rollback, and aborts cannot occur;
// fn runs exactly once and its error, if any, is returned unchanged.
//
// Bounds that negotiate their timestamp per request (max staleness, min
// read timestamp) cannot pin a timestamp across operations and are
// rejected with a ConfigurationError before any request is issued.
func (db *DB) ReadOnly(
	ctx context.Context,
	sess *Session,
	bound txnpb.TimestampBound,
	fn func(context.Context, *ReadOnlyTxn) error,
) error {
	if sess == nil {
		return txnpb.NewConfigurationErrorf("nil session")
	}
	if err := bound.Validate(); err != nil {
		return err
	}
	if bound.RequiresSingleUse() {
		return txnpb.NewConfigurationErrorf(
			"%s bound negotiates its timestamp per request and cannot be used "+
				"with a multi-use transaction", bound)
	}
	ctx = logtags.AddTag(ctx, "s", sess.name)
	// The gate holds the one-active-handle-per-session invariant against
	// concurrent read-write transactions.
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return fn(ctx, &ReadOnlyTxn{db: db, sess: sess, bound: bound, multiUse: true})
}

// Single returns a single-use read-only transaction on sess at the given
// bound. Each operation independently selects its own transaction
// context; no transaction id is ever created, so the bound may be any of
// the five policies, including the per-request negotiating ones.
func (db *DB) Single(sess *Session, bound txnpb.TimestampBound) *ReadOnlyTxn {
	rot := &ReadOnlyTxn{db: db, sess: sess, bound: bound}
	if sess == nil {
		rot.initErr = txnpb.NewConfigurationErrorf("nil session")
	}
	return rot
}

// deadlineCloser returns a channel that closes when the deadline passes
// on db's clock, and a stop function that releases the timer goroutine.
func (db *DB) deadlineCloser(deadline time.Time) (<-chan struct{}, func()) {
	closer := make(chan struct{})
	stop := make(chan struct{})
	done := make(chan struct{})
	timer := db.clock.NewTimer()
	timer.Reset(db.clock.Until(deadline))
	go func() {
		defer close(done)
		defer timer.Stop()
		select {
		case <-timer.Ch():
			timer.MarkRead()
			close(closer)
		case <-stop:
		}
	}()
	return closer, func() {
		close(stop)
		<-done
	}
}

// sleep blocks for d on db's clock, returning false if ctx was canceled
// or the closer fired first.
func (db *DB) sleep(ctx context.Context, d time.Duration, closer <-chan struct{}) bool {
	timer := db.clock.NewTimer()
	defer timer.Stop()
	timer.Reset(d)
	select {
	case <-timer.Ch():
		timer.MarkRead()
		return true
	case <-closer:
		return false
	case <-ctx.Done():
		return false
	}
}
