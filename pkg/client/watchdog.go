// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package client

import (
	"context"
	"time"

	"github.com/cockroachdb/txnkit/pkg/util/syncutil"
	"github.com/cockroachdb/txnkit/pkg/util/timeutil"
)

// idleWatchdog tracks the time since a transaction attempt last
// dispatched a read or query. When the idle threshold passes, it fires
// the keep-alive callback so a quiet transaction is not idle-aborted by
// the service. The watchdog is advisory only: it carries no authority
// over the service's own idle-abort decision, and a keep-alive that fails
// changes nothing.
//
// One watchdog serves one attempt: start when the attempt turns active,
// stop (which joins the goroutine) before the attempt completes.
type idleWatchdog struct {
	clock     timeutil.TimeSource
	threshold time.Duration
	keepAlive func(context.Context)

	stopC chan struct{}
	doneC chan struct{}

	mu struct {
		syncutil.Mutex
		lastActivity time.Time
	}
}

func newIdleWatchdog(
	clock timeutil.TimeSource, threshold time.Duration, keepAlive func(context.Context),
) *idleWatchdog {
	w := &idleWatchdog{
		clock:     clock,
		threshold: threshold,
		keepAlive: keepAlive,
		stopC:     make(chan struct{}),
		doneC:     make(chan struct{}),
	}
	w.mu.lastActivity = clock.Now()
	return w
}

// touch records a dispatch, resetting the idle clock.
func (w *idleWatchdog) touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mu.lastActivity = w.clock.Now()
}

// SecondsSinceLastActivity returns how long the attempt has been idle.
func (w *idleWatchdog) SecondsSinceLastActivity() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.clock.Since(w.mu.lastActivity).Seconds()
}

// start launches the monitor goroutine.
func (w *idleWatchdog) start(ctx context.Context) {
	go w.run(ctx)
}

// stop terminates the monitor and waits for it to exit.
func (w *idleWatchdog) stop() {
	close(w.stopC)
	<-w.doneC
}

func (w *idleWatchdog) run(ctx context.Context) {
	defer close(w.doneC)
	timer := w.clock.NewTimer()
	defer timer.Stop()
	for {
		w.mu.Lock()
		idleFor := w.clock.Since(w.mu.lastActivity)
		w.mu.Unlock()
		if wait := w.threshold - idleFor; wait > 0 {
			timer.Reset(wait)
		} else {
			w.keepAlive(ctx)
			// The keep-alive counts as activity whether or not it
			// succeeded; a failing one must not busy-loop.
			w.touch()
			timer.Reset(w.threshold)
		}
		select {
		case <-timer.Ch():
			timer.MarkRead()
		case <-w.stopC:
			return
		case <-ctx.Done():
			return
		}
	}
}
