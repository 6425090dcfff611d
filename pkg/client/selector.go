// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package client

import (
	"github.com/cockroachdb/txnkit/pkg/txnpb"
)

// Selector resolution: every outgoing read or execute request carries a
// TransactionSelector saying which transaction it runs in. The helpers
// below are the only place selectors are built, so every combination of
// mode, bound, and handle is validated once, before any request is
// issued. Violations are ConfigurationErrors, never requests.

// makeBeginSelector builds a selector that begins a transaction inline
// with the request it is attached to.
func makeBeginSelector(
	mode txnpb.TransactionMode, bound txnpb.TimestampBound, priority int32,
) (txnpb.TransactionSelector, error) {
	if mode == txnpb.SingleUse {
		return txnpb.TransactionSelector{}, txnpb.NewConfigurationErrorf(
			"cannot begin a single-use transaction; single-use contexts have no identity")
	}
	if bound.RequiresSingleUse() {
		return txnpb.TransactionSelector{}, txnpb.NewConfigurationErrorf(
			"%s bound negotiates its timestamp per request and cannot be used "+
				"with a multi-use transaction", bound)
	}
	opts := txnpb.TransactionOptions{Mode: mode, Bound: bound, Priority: priority}
	if err := opts.Validate(); err != nil {
		return txnpb.TransactionSelector{}, err
	}
	return txnpb.BeginSelector(opts), nil
}

// makeSingleUseSelector builds a selector for one independent read-only
// request at the given bound.
func makeSingleUseSelector(bound txnpb.TimestampBound) (txnpb.TransactionSelector, error) {
	if err := bound.Validate(); err != nil {
		return txnpb.TransactionSelector{}, err
	}
	return txnpb.SingleUseSelector(bound), nil
}

// makeIDSelector builds a selector naming the existing transaction held
// by the handle.
func makeIDSelector(h Handle) (txnpb.TransactionSelector, error) {
	if h.IsEmpty() {
		return txnpb.TransactionSelector{}, txnpb.NewConfigurationErrorf(
			"cannot address a transaction without an id (%s handle)", h.Mode())
	}
	return txnpb.IDSelector(h.ID()), nil
}
