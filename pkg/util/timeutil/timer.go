// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package timeutil

import (
	"sync"
	"time"
)

var timerPool = sync.Pool{
	New: func() interface{} {
		return &Timer{}
	},
}

var timeTimerPool sync.Pool

// The Timer type represents a single event. When the Timer expires, the
// current time will be sent on Timer.C.
//
// This timer differs from the one in the time package in that it can be
// reset without draining its channel first, at the cost of a small amount
// of book-keeping by the user: whenever the current time is received from
// Timer.C, the user must call Timer.MarkRead before the next call to
// Reset. A typical loop looks like:
//
//	var timer timeutil.Timer
//	defer timer.Stop()
//	for {
//		timer.Reset(waitDur)
//		select {
//		case <-timer.C:
//			timer.MarkRead()
//			...
//		case <-ctx.Done():
//			return
//		}
//	}
//
// Note that unlike the standard library, this Timer's channel never
// delivers a stale expiration from before the latest Reset.
type Timer struct {
	timer *time.Timer
	// C is a local copy of timer.C usable in a select before the first
	// Reset initializes the underlying timer.
	C    <-chan time.Time
	Read bool
}

// NewTimer allocates a new timer, likely from the pool. The timer is not
// armed until Reset is called. Stop returns it to the pool.
func NewTimer() *Timer {
	return timerPool.Get().(*Timer)
}

// Reset changes the timer to expire after duration d and starts it.
func (t *Timer) Reset(d time.Duration) {
	if t.timer == nil {
		switch timer := timeTimerPool.Get(); timer {
		case nil:
			t.timer = time.NewTimer(d)
		default:
			t.timer = timer.(*time.Timer)
			t.timer.Reset(d)
		}
		t.C = t.timer.C
		return
	}
	// Stop the timer and drain an expiration that was never read, so the
	// new arming cannot be confused with the old one.
	if !t.timer.Stop() && !t.Read {
		<-t.C
	}
	t.timer.Reset(d)
	t.Read = false
}

// Stop prevents the timer from firing, returning whether it was stopped
// before expiring. The receiver is returned to the pool and must not be
// used again.
func (t *Timer) Stop() bool {
	var stopped bool
	if t.timer != nil {
		stopped = t.timer.Stop()
		if stopped {
			timeTimerPool.Put(t.timer)
		}
	}
	*t = Timer{}
	timerPool.Put(t)
	return stopped
}

// MarkRead records that the timer's channel has been received from after
// the latest Reset.
func (t *Timer) MarkRead() {
	t.Read = true
}

// Ch returns the expiration channel, implementing TimerI.
func (t *Timer) Ch() <-chan time.Time {
	return t.C
}
