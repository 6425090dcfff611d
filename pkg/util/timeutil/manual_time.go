// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package timeutil

import (
	"time"

	"github.com/cockroachdb/txnkit/pkg/util/syncutil"
)

// ManualTime is a TimeSource whose clock only moves when Advance or
// AdvanceTo is called. Timers created from it fire during the Advance
// call that reaches their expiration. Safe for concurrent use.
type ManualTime struct {
	mu struct {
		syncutil.Mutex
		now    time.Time
		timers []*manualTimer
	}
}

var _ TimeSource = (*ManualTime)(nil)

// NewManualTime constructs a ManualTime reading initial until advanced.
func NewManualTime(initial time.Time) *ManualTime {
	m := &ManualTime{}
	m.mu.now = initial
	return m
}

// Now implements TimeSource.
func (m *ManualTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mu.now
}

// Since implements TimeSource.
func (m *ManualTime) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

// Until implements TimeSource.
func (m *ManualTime) Until(t time.Time) time.Duration {
	return t.Sub(m.Now())
}

// NewTimer implements TimeSource.
func (m *ManualTime) NewTimer() TimerI {
	return &manualTimer{m: m, ch: make(chan time.Time, 1)}
}

// Advance moves the clock forward by d and fires every timer whose
// expiration has been reached.
func (m *ManualTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advanceToLocked(m.mu.now.Add(d))
}

// AdvanceTo moves the clock to t, if t is ahead of it, and fires every
// timer whose expiration has been reached.
func (m *ManualTime) AdvanceTo(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advanceToLocked(t)
}

// Timers returns the expiration times of the currently armed timers, in
// no particular order. Tests use it to wait for a timer to be armed
// before advancing the clock.
func (m *ManualTime) Timers() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp := make([]time.Time, len(m.mu.timers))
	for i, t := range m.mu.timers {
		exp[i] = t.at
	}
	return exp
}

func (m *ManualTime) advanceToLocked(now time.Time) {
	m.mu.AssertHeld()
	if now.Before(m.mu.now) {
		return
	}
	m.mu.now = now
	kept := m.mu.timers[:0]
	for _, t := range m.mu.timers {
		if t.at.After(now) {
			kept = append(kept, t)
			continue
		}
		t.fire(now)
	}
	m.mu.timers = kept
}

func (m *ManualTime) registerLocked(t *manualTimer) {
	m.mu.AssertHeld()
	for _, existing := range m.mu.timers {
		if existing == t {
			return
		}
	}
	m.mu.timers = append(m.mu.timers, t)
}

func (m *ManualTime) deregisterLocked(t *manualTimer) bool {
	m.mu.AssertHeld()
	for i, existing := range m.mu.timers {
		if existing == t {
			m.mu.timers = append(m.mu.timers[:i], m.mu.timers[i+1:]...)
			return true
		}
	}
	return false
}

type manualTimer struct {
	m  *ManualTime
	at time.Time
	ch chan time.Time
}

var _ TimerI = (*manualTimer)(nil)

// Reset implements TimerI. A non-positive duration fires the timer
// immediately, matching the standard library.
func (t *manualTimer) Reset(d time.Duration) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.at = t.m.mu.now.Add(d)
	if !t.at.After(t.m.mu.now) {
		t.m.deregisterLocked(t)
		t.fire(t.m.mu.now)
		return
	}
	t.m.registerLocked(t)
}

// Stop implements TimerI.
func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.m.deregisterLocked(t)
}

// Ch implements TimerI.
func (t *manualTimer) Ch() <-chan time.Time {
	return t.ch
}

// MarkRead implements TimerI.
func (t *manualTimer) MarkRead() {}

// fire delivers now on the timer's channel, dropping any stale delivery
// from an earlier arming.
func (t *manualTimer) fire(now time.Time) {
	select {
	case <-t.ch:
	default:
	}
	t.ch <- now
}
