// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package timeutil

import "time"

// TimeSource is used to interact with the clock and timers. Generally
// DefaultTimeSource should be used except in tests, which substitute a
// ManualTime.
type TimeSource interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	Until(t time.Time) time.Duration
	NewTimer() TimerI
}

// TimerI is an interface wrapping Timer so that a manual clock can hand
// out deterministic timers.
type TimerI interface {
	// Reset changes the timer to expire after duration d.
	Reset(d time.Duration)
	// Stop prevents the timer from firing, releasing its resources.
	Stop() bool
	// Ch returns the channel the expiration is delivered on.
	Ch() <-chan time.Time
	// MarkRead records that the channel was received from after the
	// latest Reset.
	MarkRead()
}

// DefaultTimeSource is a TimeSource using the system clock.
type DefaultTimeSource struct{}

var _ TimeSource = DefaultTimeSource{}

// Now implements TimeSource.
func (DefaultTimeSource) Now() time.Time {
	return Now()
}

// Since implements TimeSource.
func (DefaultTimeSource) Since(t time.Time) time.Duration {
	return Since(t)
}

// Until implements TimeSource.
func (DefaultTimeSource) Until(t time.Time) time.Duration {
	return Until(t)
}

// NewTimer implements TimeSource.
func (DefaultTimeSource) NewTimer() TimerI {
	return NewTimer()
}
