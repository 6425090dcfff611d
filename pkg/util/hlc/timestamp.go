// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package hlc provides the timestamp type used for transaction read and
// commit timestamps. A Timestamp is a wall clock reading in nanoseconds
// plus a logical component that breaks ties between events captured at
// the same wall time.
package hlc

import (
	"time"

	"github.com/cockroachdb/redact"
)

// Timestamp is a point in the database's timeline. The zero value is
// "no timestamp" and is reported by IsEmpty.
type Timestamp struct {
	// WallTime is nanoseconds since the Unix epoch.
	WallTime int64
	// Logical orders events within the same wall time tick.
	Logical int32
}

// FromGoTime returns a Timestamp at the given wall time with no logical
// component. The monotonic clock reading, if any, is dropped.
func FromGoTime(t time.Time) Timestamp {
	return Timestamp{WallTime: t.UnixNano()}
}

// GoTime converts the timestamp to a time.Time, losing the logical
// component.
func (t Timestamp) GoTime() time.Time {
	return time.Unix(0, t.WallTime)
}

// IsEmpty reports whether t is the zero timestamp.
func (t Timestamp) IsEmpty() bool {
	return t == Timestamp{}
}

// Less reports whether t precedes s.
func (t Timestamp) Less(s Timestamp) bool {
	return t.WallTime < s.WallTime || (t.WallTime == s.WallTime && t.Logical < s.Logical)
}

// LessEq reports whether t precedes or equals s.
func (t Timestamp) LessEq(s Timestamp) bool {
	return t.WallTime < s.WallTime || (t.WallTime == s.WallTime && t.Logical <= s.Logical)
}

// Compare returns -1, 0, or +1 depending on whether t is earlier than,
// equal to, or later than s.
func (t Timestamp) Compare(s Timestamp) int {
	if t.WallTime > s.WallTime {
		return 1
	} else if t.WallTime < s.WallTime {
		return -1
	} else if t.Logical > s.Logical {
		return 1
	} else if t.Logical < s.Logical {
		return -1
	}
	return 0
}

// Forward replaces t with s if s is later, returning whether t changed.
func (t *Timestamp) Forward(s Timestamp) bool {
	if t.Less(s) {
		*t = s
		return true
	}
	return false
}

// Add returns a timestamp with the given offsets applied. The receiver
// is unchanged.
func (t Timestamp) Add(wallTime int64, logical int32) Timestamp {
	return Timestamp{WallTime: t.WallTime + wallTime, Logical: t.Logical + logical}
}

// String renders the timestamp as "<seconds>.<nanos>,<logical>", e.g.
// "1718947211.000000001,2". The format sorts lexicographically for equal
// width wall times, which keeps log output scannable.
func (t Timestamp) String() string {
	return redact.StringWithoutMarkers(t)
}

// SafeFormat implements the redact.SafeFormatter interface.
func (t Timestamp) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%d.%09d,%d", t.WallTime/1e9, t.WallTime%1e9, t.Logical)
}

var _ redact.SafeFormatter = Timestamp{}
