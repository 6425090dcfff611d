// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txnpb

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnkit/pkg/util/hlc"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
)

func TestIsTransactionAborted(t *testing.T) {
	abort := &TransactionAbortedError{}
	require.True(t, IsTransactionAborted(abort))
	require.True(t, IsTransactionAborted(errors.Wrap(abort, "read r1")))
	require.True(t, IsTransactionAborted(status.Error(codes.Aborted, "lock lost")))
	require.True(t, IsTransactionAborted(
		errors.Wrap(status.Error(codes.Aborted, "lock lost"), "commit")))

	require.False(t, IsTransactionAborted(nil))
	require.False(t, IsTransactionAborted(errors.New("boom")))
	require.False(t, IsTransactionAborted(status.Error(codes.Unavailable, "down")))
	require.False(t, IsTransactionAborted(&StaleReadError{}))
}

func TestIsStaleRead(t *testing.T) {
	stale := &StaleReadError{
		ReadTimestamp: hlc.Timestamp{WallTime: 1e9},
		Earliest:      hlc.Timestamp{WallTime: 5e9},
	}
	require.True(t, IsStaleRead(stale))
	require.True(t, IsStaleRead(errors.Wrap(stale, "read r1")))
	require.True(t, IsStaleRead(status.Error(codes.FailedPrecondition, "gc'ed")))
	require.False(t, IsStaleRead(errors.New("boom")))
	require.False(t, IsStaleRead(&TransactionAbortedError{}))

	require.Contains(t, stale.Error(), "below the earliest retained timestamp")
}

func TestIsConfiguration(t *testing.T) {
	err := NewConfigurationErrorf("bad bound %d", 7)
	require.True(t, IsConfiguration(err))
	require.True(t, IsConfiguration(errors.Wrap(err, "begin")))
	require.False(t, IsConfiguration(errors.New("boom")))
	require.Contains(t, err.Error(), "bad bound 7")
}

func TestAbortRetryDelayFromStructuredError(t *testing.T) {
	d, ok := AbortRetryDelay(&TransactionAbortedError{RetryDelay: 42 * time.Millisecond})
	require.True(t, ok)
	require.Equal(t, 42*time.Millisecond, d)

	d, ok = AbortRetryDelay(errors.Wrap(
		&TransactionAbortedError{RetryDelay: time.Second}, "commit"))
	require.True(t, ok)
	require.Equal(t, time.Second, d)

	_, ok = AbortRetryDelay(&TransactionAbortedError{})
	require.False(t, ok)
	_, ok = AbortRetryDelay(errors.New("boom"))
	require.False(t, ok)
}

func TestAbortRetryDelayFromStatusDetails(t *testing.T) {
	st, err := status.New(codes.Aborted, "lock lost").WithDetails(&errdetails.RetryInfo{
		RetryDelay: durationpb.New(250 * time.Millisecond),
	})
	require.NoError(t, err)

	d, ok := AbortRetryDelay(st.Err())
	require.True(t, ok)
	require.Equal(t, 250*time.Millisecond, d)

	// A status without details carries no hint.
	_, ok = AbortRetryDelay(status.Error(codes.Aborted, "lock lost"))
	require.False(t, ok)
}

func TestAbortedErrorRendering(t *testing.T) {
	require.Equal(t, "transaction aborted by the service",
		(&TransactionAbortedError{}).Error())
	require.Equal(t, "transaction aborted by the service (retry after 10ms)",
		(&TransactionAbortedError{RetryDelay: 10 * time.Millisecond}).Error())
}
