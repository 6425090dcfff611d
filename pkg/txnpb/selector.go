// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txnpb

import (
	"encoding/hex"

	"github.com/cockroachdb/redact"
)

// SelectorKind enumerates the ways a request names its transaction.
type SelectorKind int32

const (
	// SelectorSingleUse runs the request in a throwaway read-only context
	// described by the selector's options. No transaction id is created.
	SelectorSingleUse SelectorKind = iota
	// SelectorID runs the request inside the existing transaction named
	// by the selector's id.
	SelectorID
	// SelectorBegin begins a new transaction with the selector's options
	// as a side effect of this request, returning the new Transaction in
	// the response.
	SelectorBegin
)

// TransactionSelector is the one-of attached to every read and execute
// request that resolves "which transaction does this request run in". The
// zero value is a single-use strong read.
type TransactionSelector struct {
	kind SelectorKind
	opts TransactionOptions
	id   []byte
}

// SingleUseSelector returns a selector for one independent read-only
// request at the given bound.
func SingleUseSelector(bound TimestampBound) TransactionSelector {
	return TransactionSelector{
		kind: SelectorSingleUse,
		opts: TransactionOptions{Mode: SingleUse, Bound: bound},
	}
}

// IDSelector returns a selector naming an existing transaction. The id is
// carried verbatim.
func IDSelector(id []byte) TransactionSelector {
	return TransactionSelector{kind: SelectorID, id: id}
}

// BeginSelector returns a selector that begins a transaction with the
// given options as a side effect of the request it is attached to.
func BeginSelector(opts TransactionOptions) TransactionSelector {
	return TransactionSelector{kind: SelectorBegin, opts: opts}
}

// Kind returns which arm of the one-of is populated.
func (s TransactionSelector) Kind() SelectorKind {
	return s.kind
}

// Options returns the options payload of a single-use or begin selector.
func (s TransactionSelector) Options() TransactionOptions {
	return s.opts
}

// ID returns the id payload of an id selector.
func (s TransactionSelector) ID() []byte {
	return s.id
}

// String implements fmt.Stringer.
func (s TransactionSelector) String() string {
	return redact.StringWithoutMarkers(s)
}

// SafeFormat implements the redact.SafeFormatter interface.
func (s TransactionSelector) SafeFormat(w redact.SafePrinter, _ rune) {
	switch s.kind {
	case SelectorSingleUse:
		w.Printf("single-use %s", s.opts.Bound)
	case SelectorID:
		w.Printf("id %s", redact.SafeString(shortID(s.id)))
	case SelectorBegin:
		w.Printf("begin %s", s.opts)
	default:
		w.Printf("selector(%d)", int32(s.kind))
	}
}

// shortID renders a transaction id prefix for logs. Ids are opaque; the
// hex prefix is only for correlation by eye.
func shortID(id []byte) string {
	if len(id) == 0 {
		return "<none>"
	}
	const n = 4
	if len(id) <= n {
		return hex.EncodeToString(id)
	}
	return hex.EncodeToString(id[:n]) + "..."
}
