// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package txnpb contains the transaction-protocol value types exchanged
// with the transaction service: modes, timestamp bounds, selectors, and
// the request/response envelopes for begin, read, execute, commit, and
// rollback. The types are hand-maintained mirrors of the service's wire
// messages; the canonical encoding lives with the service and is not this
// package's concern.
package txnpb

import (
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/txnkit/pkg/util/hlc"
)

// TransactionMode distinguishes how a transaction interacts with the
// database's concurrency control.
type TransactionMode int32

const (
	// ReadWrite transactions acquire locks and commit at a timestamp
	// chosen by the service. They may abort under contention.
	ReadWrite TransactionMode = iota
	// ReadOnly transactions read a consistent snapshot selected by a
	// TimestampBound. They never lock and never abort under contention.
	ReadOnly
	// SingleUse marks a read-only context that lives for exactly one
	// request and has no reusable identity.
	SingleUse
)

// String implements fmt.Stringer.
func (m TransactionMode) String() string {
	return redact.StringWithoutMarkers(m)
}

// SafeFormat implements the redact.SafeFormatter interface.
func (m TransactionMode) SafeFormat(w redact.SafePrinter, _ rune) {
	switch m {
	case ReadWrite:
		w.SafeString("read-write")
	case ReadOnly:
		w.SafeString("read-only")
	case SingleUse:
		w.SafeString("single-use")
	default:
		w.Printf("mode(%d)", int32(m))
	}
}

// TransactionOptions declares the mode and read-timestamp policy of a
// transaction about to begin.
type TransactionOptions struct {
	Mode TransactionMode
	// Bound constrains the read timestamp. Only read-only transactions
	// carry a non-strong bound; read-write transactions always read at
	// their commit timestamp.
	Bound TimestampBound
	// Priority biases lock contention toward this transaction. The
	// coordinator raises it by one for every consecutive abort of the
	// same logical transaction, so a much-aborted transaction eventually
	// wins the locks it needs.
	Priority int32
}

// Validate checks internal consistency. Violations are reported as
// ConfigurationErrors before any request is issued.
func (o TransactionOptions) Validate() error {
	if o.Priority < 0 {
		return NewConfigurationErrorf("negative priority %d", o.Priority)
	}
	if err := o.Bound.Validate(); err != nil {
		return err
	}
	if o.Mode == ReadWrite && o.Bound.Kind() != BoundStrong {
		return NewConfigurationErrorf(
			"read-write transactions cannot carry a timestamp bound; got %s", o.Bound)
	}
	return nil
}

// String implements fmt.Stringer.
func (o TransactionOptions) String() string {
	return redact.StringWithoutMarkers(o)
}

// SafeFormat implements the redact.SafeFormatter interface.
func (o TransactionOptions) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%s", o.Mode)
	if o.Bound.Kind() != BoundStrong {
		w.Printf(" %s", o.Bound)
	}
	if o.Priority != 0 {
		w.Printf(" pri=%d", o.Priority)
	}
}

// Transaction identifies a transaction begun by the service. The id is
// opaque to the client: it is carried back verbatim on subsequent
// requests and compared only by byte equality.
type Transaction struct {
	ID []byte
	// ReadTimestamp is the snapshot timestamp the service selected.
	// Empty for read-write transactions, which read at commit time.
	ReadTimestamp hlc.Timestamp
}
