// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package client

import (
	"bytes"
	"encoding/hex"

	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/txnkit/pkg/txnpb"
	"github.com/cockroachdb/txnkit/pkg/util/hlc"
)

// Handle identifies an in-flight transaction. The id is an opaque byte
// sequence assigned by the service; the coordinator never parses or
// constructs one, it only carries it back on subsequent requests and
// compares it by byte equality. A handle with no id is valid only for
// single-use read-only transactions, which have no reusable identity.
//
// Handles are immutable after creation and are logically destroyed by
// commit, rollback, or abort; the coordinator never reuses one across
// attempts.
type Handle struct {
	id            []byte
	readTimestamp hlc.Timestamp
	mode          txnpb.TransactionMode
}

// ID returns the opaque transaction id, or nil for single-use handles.
func (h Handle) ID() []byte {
	return h.id
}

// ReadTimestamp returns the snapshot timestamp the service selected for
// the handle, or the empty timestamp if none was reported. Once set, all
// reads through the handle observe exactly this timestamp.
func (h Handle) ReadTimestamp() hlc.Timestamp {
	return h.readTimestamp
}

// Mode returns how the handle interacts with concurrency control.
func (h Handle) Mode() txnpb.TransactionMode {
	return h.mode
}

// IsEmpty reports whether the handle has no id.
func (h Handle) IsEmpty() bool {
	return len(h.id) == 0
}

// Equal reports whether two handles name the same transaction, comparing
// ids byte for byte.
func (h Handle) Equal(o Handle) bool {
	return bytes.Equal(h.id, o.id)
}

// String implements fmt.Stringer.
func (h Handle) String() string {
	return redact.StringWithoutMarkers(h)
}

// SafeFormat implements the redact.SafeFormatter interface.
func (h Handle) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%s", h.mode)
	if len(h.id) > 0 {
		w.Printf(" %s", redact.SafeString(shortHandleID(h.id)))
	}
	if !h.readTimestamp.IsEmpty() {
		w.Printf("@%s", h.readTimestamp)
	}
}

// shortHandleID renders an id prefix for logs, for correlation by eye.
func shortHandleID(id []byte) string {
	const n = 4
	if len(id) <= n {
		return hex.EncodeToString(id)
	}
	return hex.EncodeToString(id[:n]) + "..."
}
