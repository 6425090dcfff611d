// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package client

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// DeadlineExceededError is synthesized by the coordinator when a
// transaction's wall-clock retry budget runs out after one or more
// aborts. It is deliberately a distinct kind from the abort that caused
// it, so callers can tell "gave up after contention" apart from "the
// service rejected the transaction".
type DeadlineExceededError struct {
	// Deadline is the wall-clock instant the budget expired at.
	Deadline time.Time
	// Attempts is how many attempts ran before the budget expired.
	Attempts int
	// lastAbort is the abort that was being retried when the budget ran
	// out. Kept out of the unwrap chain so the error never classifies as
	// abort-class itself.
	lastAbort error
}

var _ errors.SafeFormatter = (*DeadlineExceededError)(nil)

// Error implements error.
func (e *DeadlineExceededError) Error() string { return fmt.Sprint(e) }

// Format implements fmt.Formatter.
func (e *DeadlineExceededError) Format(s fmt.State, verb rune) { errors.FormatError(e, s, verb) }

// SafeFormatError implements errors.SafeFormatter.
func (e *DeadlineExceededError) SafeFormatError(p errors.Printer) (next error) {
	p.Printf("transaction deadline exceeded after %d attempts", e.Attempts)
	if e.lastAbort != nil {
		p.Printf("; last abort: %v", e.lastAbort)
	}
	return nil
}

// IsDeadlineExceeded returns whether err reports an exhausted transaction
// retry budget.
func IsDeadlineExceeded(err error) bool {
	return errors.HasType(err, (*DeadlineExceededError)(nil))
}
