// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package syncutil provides the mutex types used throughout the kit.
// They wrap the standard library types so that lock-ordering or deadlock
// instrumentation can be layered in without touching call sites.
package syncutil

import "sync"

// A Mutex is a mutual exclusion lock.
type Mutex struct {
	sync.Mutex
}

// AssertHeld may panic if the mutex is not locked (but it is not required
// to do so). Functions which require that their callers hold a particular
// lock may use this to enforce this requirement more directly than relying
// on the race detector.
//
// Note that the lock is not required to be held by any particular
// goroutine, just that some goroutine holds it.
func (m *Mutex) AssertHeld() {
}

// An RWMutex is a reader/writer mutual exclusion lock.
type RWMutex struct {
	sync.RWMutex
}

// AssertHeld may panic if the mutex is not locked for writing (but it is
// not required to do so).
func (rw *RWMutex) AssertHeld() {
}

// AssertRHeld may panic if the mutex is not locked for reading (but it is
// not required to do so). A write-locked mutex is also considered locked
// for reading.
func (rw *RWMutex) AssertRHeld() {
}
