// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txnpb

import (
	"time"

	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/txnkit/pkg/util/hlc"
)

// BoundKind enumerates the read-timestamp selection policies.
type BoundKind int32

const (
	// BoundStrong reads the latest data as of the start of the read.
	BoundStrong BoundKind = iota
	// BoundReadTimestamp reads exactly at a caller-provided timestamp.
	BoundReadTimestamp
	// BoundMinReadTimestamp reads at the freshest timestamp no older than
	// a caller-provided one. Negotiated per request, so it is limited to
	// single-use transactions.
	BoundMinReadTimestamp
	// BoundExactStaleness reads exactly at now minus a fixed duration.
	BoundExactStaleness
	// BoundMaxStaleness reads at the freshest timestamp within a staleness
	// budget. Negotiated per request, so it is limited to single-use
	// transactions.
	BoundMaxStaleness
)

// TimestampBound is a one-of value describing how the service should pick
// the read timestamp of a read-only transaction. The zero value is the
// strong bound. Values are immutable; constructors are the only way to
// populate the payload, which keeps conflicting bound combinations
// unrepresentable.
type TimestampBound struct {
	kind      BoundKind
	ts        hlc.Timestamp
	staleness time.Duration
}

// StrongRead returns a bound that reads the latest data.
func StrongRead() TimestampBound {
	return TimestampBound{kind: BoundStrong}
}

// ReadTimestamp returns a bound that reads exactly at ts.
func ReadTimestamp(ts hlc.Timestamp) TimestampBound {
	return TimestampBound{kind: BoundReadTimestamp, ts: ts}
}

// MinReadTimestamp returns a bound that reads at the freshest available
// timestamp no older than ts. Single-use transactions only.
func MinReadTimestamp(ts hlc.Timestamp) TimestampBound {
	return TimestampBound{kind: BoundMinReadTimestamp, ts: ts}
}

// ExactStaleness returns a bound that reads exactly at now minus d.
func ExactStaleness(d time.Duration) TimestampBound {
	return TimestampBound{kind: BoundExactStaleness, staleness: d}
}

// MaxStaleness returns a bound that reads at the freshest timestamp
// within the staleness budget d. Single-use transactions only.
func MaxStaleness(d time.Duration) TimestampBound {
	return TimestampBound{kind: BoundMaxStaleness, staleness: d}
}

// Kind returns which policy this bound selects.
func (b TimestampBound) Kind() BoundKind {
	return b.kind
}

// Timestamp returns the timestamp payload of a BoundReadTimestamp or
// BoundMinReadTimestamp bound, and zero otherwise.
func (b TimestampBound) Timestamp() hlc.Timestamp {
	return b.ts
}

// Staleness returns the duration payload of a BoundExactStaleness or
// BoundMaxStaleness bound, and zero otherwise.
func (b TimestampBound) Staleness() time.Duration {
	return b.staleness
}

// RequiresSingleUse returns whether the bound negotiates its timestamp
// per request and is therefore restricted to single-use transactions.
func (b TimestampBound) RequiresSingleUse() bool {
	return b.kind == BoundMaxStaleness || b.kind == BoundMinReadTimestamp
}

// Validate checks the payload. Staleness must be non-negative and
// timestamps must name a real point in time.
func (b TimestampBound) Validate() error {
	switch b.kind {
	case BoundReadTimestamp, BoundMinReadTimestamp:
		if b.ts.IsEmpty() {
			return NewConfigurationErrorf("%s bound requires a timestamp", b.kindString())
		}
	case BoundExactStaleness, BoundMaxStaleness:
		if b.staleness < 0 {
			return NewConfigurationErrorf("%s bound requires a non-negative staleness; got %s",
				b.kindString(), b.staleness)
		}
	}
	return nil
}

func (b TimestampBound) kindString() redact.SafeString {
	switch b.kind {
	case BoundStrong:
		return "strong"
	case BoundReadTimestamp:
		return "read_timestamp"
	case BoundMinReadTimestamp:
		return "min_read_timestamp"
	case BoundExactStaleness:
		return "exact_staleness"
	case BoundMaxStaleness:
		return "max_staleness"
	default:
		return "unknown"
	}
}

// String implements fmt.Stringer.
func (b TimestampBound) String() string {
	return redact.StringWithoutMarkers(b)
}

// SafeFormat implements the redact.SafeFormatter interface.
func (b TimestampBound) SafeFormat(w redact.SafePrinter, _ rune) {
	switch b.kind {
	case BoundStrong:
		w.SafeString("strong")
	case BoundReadTimestamp, BoundMinReadTimestamp:
		w.Printf("%s %s", b.kindString(), b.ts)
	case BoundExactStaleness, BoundMaxStaleness:
		w.Printf("%s %s", b.kindString(), b.staleness)
	default:
		w.Printf("bound(%d)", int32(b.kind))
	}
}
