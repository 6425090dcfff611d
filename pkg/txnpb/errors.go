// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txnpb

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnkit/pkg/util/hlc"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TransactionAbortedError is the abort-class error: the service could not
// complete the operation due to contention or lock loss, and guarantees
// that no partial write took effect. It is the only error the coordinator
// retries.
type TransactionAbortedError struct {
	// RetryDelay is the service's hint for how long to wait before
	// retrying; zero when the service offered none.
	RetryDelay time.Duration
}

var _ errors.SafeFormatter = (*TransactionAbortedError)(nil)

// Error implements error.
func (e *TransactionAbortedError) Error() string { return fmt.Sprint(e) }

// Format implements fmt.Formatter.
func (e *TransactionAbortedError) Format(s fmt.State, verb rune) { errors.FormatError(e, s, verb) }

// SafeFormatError implements errors.SafeFormatter.
func (e *TransactionAbortedError) SafeFormatError(p errors.Printer) (next error) {
	p.Printf("transaction aborted by the service")
	if e.RetryDelay > 0 {
		p.Printf(" (retry after %s)", e.RetryDelay)
	}
	return nil
}

// StaleReadError is the failed-precondition-class error: the requested
// read timestamp has fallen behind the service's retention window and can
// no longer be served. Terminal; retrying cannot help.
type StaleReadError struct {
	// ReadTimestamp is the timestamp that could not be served.
	ReadTimestamp hlc.Timestamp
	// Earliest is the oldest timestamp the service still retains.
	Earliest hlc.Timestamp
}

var _ errors.SafeFormatter = (*StaleReadError)(nil)

// Error implements error.
func (e *StaleReadError) Error() string { return fmt.Sprint(e) }

// Format implements fmt.Formatter.
func (e *StaleReadError) Format(s fmt.State, verb rune) { errors.FormatError(e, s, verb) }

// SafeFormatError implements errors.SafeFormatter.
func (e *StaleReadError) SafeFormatError(p errors.Printer) (next error) {
	p.Printf("read timestamp %s is below the earliest retained timestamp %s",
		e.ReadTimestamp, e.Earliest)
	return nil
}

// ConfigurationError reports caller misuse: an invalid bound, a bound
// incompatible with the transaction mode, or a selector that contradicts
// the handle it is attached to. It is always synthesized before any
// request reaches the service.
type ConfigurationError struct {
	cause error
}

// NewConfigurationErrorf creates a ConfigurationError.
func NewConfigurationErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{cause: errors.NewWithDepthf(1, format, args...)}
}

var _ error = (*ConfigurationError)(nil)

// Error implements error.
func (e *ConfigurationError) Error() string { return fmt.Sprint(e) }

// Cause implements causer.
func (e *ConfigurationError) Cause() error { return e.cause }

// Unwrap implements errors.Wrapper.
func (e *ConfigurationError) Unwrap() error { return e.cause }

// Format implements fmt.Formatter.
func (e *ConfigurationError) Format(s fmt.State, verb rune) { errors.FormatError(e, s, verb) }

// SafeFormatError implements errors.SafeFormatter.
func (e *ConfigurationError) SafeFormatError(p errors.Printer) (next error) {
	return e.cause
}

// IsTransactionAborted returns whether err is abort-class: a structured
// TransactionAbortedError anywhere in the chain, or a gRPC status with
// code Aborted. Abort-class failures are retryable with a fresh
// transaction; everything else is terminal.
func IsTransactionAborted(err error) bool {
	if errors.HasType(err, (*TransactionAbortedError)(nil)) {
		return true
	}
	return grpcCode(err) == codes.Aborted
}

// IsStaleRead returns whether err reports a read timestamp behind the
// service's retention window, via the structured error or a gRPC
// FailedPrecondition status.
func IsStaleRead(err error) bool {
	if errors.HasType(err, (*StaleReadError)(nil)) {
		return true
	}
	return grpcCode(err) == codes.FailedPrecondition
}

// IsConfiguration returns whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	return errors.HasType(err, (*ConfigurationError)(nil))
}

// AbortRetryDelay extracts the service's retry-delay hint from an
// abort-class error: the structured RetryDelay field, or the RetryInfo
// detail of a gRPC status.
func AbortRetryDelay(err error) (time.Duration, bool) {
	var abortErr *TransactionAbortedError
	if errors.As(err, &abortErr) && abortErr.RetryDelay > 0 {
		return abortErr.RetryDelay, true
	}
	if s, ok := status.FromError(err); ok {
		for _, d := range s.Details() {
			ri, ok := d.(*errdetails.RetryInfo)
			if !ok {
				continue
			}
			if delay := ri.GetRetryDelay(); delay != nil && delay.AsDuration() > 0 {
				return delay.AsDuration(), true
			}
		}
	}
	return 0, false
}

// grpcCode extracts the status code from err, unwrapping as needed.
// Non-gRPC errors report Unknown.
func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	return codes.Unknown
}
