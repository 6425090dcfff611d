// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package client

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TxnMetrics counts the coordinator's transaction outcomes. All series
// are process-wide per DB; per-session breakdowns belong to the service.
type TxnMetrics struct {
	// Commits counts logical transactions that committed.
	Commits prometheus.Counter
	// Aborts counts attempt aborts, i.e. retries triggered by contention.
	Aborts prometheus.Counter
	// Rollbacks counts explicit rollbacks of live transactions.
	Rollbacks prometheus.Counter
	// Failures counts logical transactions that ended in a terminal
	// failure other than an exhausted retry budget.
	Failures prometheus.Counter
	// DeadlineExceeded counts logical transactions that exhausted their
	// wall-clock retry budget.
	DeadlineExceeded prometheus.Counter
	// KeepAlives counts advisory keep-alive queries issued by the idle
	// watchdog.
	KeepAlives prometheus.Counter
	// Restarts tracks how many extra attempts committed transactions
	// needed; the zero bucket is the uncontended case.
	Restarts prometheus.Histogram
	// Durations tracks committed-transaction latency in seconds,
	// including all retries and backoff.
	Durations prometheus.Histogram
}

func newTxnMetrics(reg prometheus.Registerer) *TxnMetrics {
	m := &TxnMetrics{
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txnkit", Name: "commits_total",
			Help: "Committed read-write transactions.",
		}),
		Aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txnkit", Name: "aborts_total",
			Help: "Transaction attempts aborted under contention.",
		}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txnkit", Name: "rollbacks_total",
			Help: "Explicit rollbacks of live transactions.",
		}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txnkit", Name: "failures_total",
			Help: "Transactions ended by a terminal failure.",
		}),
		DeadlineExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txnkit", Name: "deadline_exceeded_total",
			Help: "Transactions that exhausted their retry budget.",
		}),
		KeepAlives: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txnkit", Name: "keepalives_total",
			Help: "Advisory keep-alive queries issued to idle transactions.",
		}),
		Restarts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "txnkit", Name: "restarts",
			Help:    "Extra attempts needed by committed transactions.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		Durations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "txnkit", Name: "duration_seconds",
			Help:    "Committed-transaction latency, retries included.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Commits, m.Aborts, m.Rollbacks, m.Failures,
			m.DeadlineExceeded, m.KeepAlives, m.Restarts, m.Durations,
		)
	}
	return m
}
