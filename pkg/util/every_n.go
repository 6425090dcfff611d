// Copyright 2017 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package util

import (
	"time"

	"github.com/cockroachdb/txnkit/pkg/util/syncutil"
)

// EveryN limits how often a spammy event is handled. It tracks when the
// event was last processed and suppresses it until N has elapsed.
//
// The zero value is usable and is equivalent to Every(0): every call to
// ShouldProcess returns true.
//
// For log messages, use the version in the log package instead, which
// cooperates with the verbosity flags.
type EveryN struct {
	// N is the minimum duration between processed events.
	N time.Duration

	syncutil.Mutex
	lastProcessed time.Time
}

// Every is a convenience constructor for an EveryN that allows an event
// every n duration.
func Every(n time.Duration) EveryN {
	return EveryN{N: n}
}

// ShouldProcess returns whether it's been more than N time since the last
// processed event.
func (e *EveryN) ShouldProcess(now time.Time) bool {
	var shouldProcess bool
	e.Lock()
	if now.Sub(e.lastProcessed) >= e.N {
		shouldProcess = true
		e.lastProcessed = now
	}
	e.Unlock()
	return shouldProcess
}
