// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package retry provides an exponential-backoff retry loop.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Options provides reusable configuration of Retry objects.
type Options struct {
	// InitialBackoff is the backoff after the first failed attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the backoff, before and after jitter.
	MaxBackoff time.Duration
	// Multiplier grows the backoff between attempts.
	Multiplier float64
	// RandomizationFactor r jitters each backoff b uniformly over
	// [b-r*b, b+r*b], clamped to MaxBackoff. 1 gives full jitter once the
	// backoff reaches the cap; 0 disables jitter.
	RandomizationFactor float64
	// Closer, when it fires, stops the loop: Next returns false.
	Closer <-chan struct{}
	// MaxRetries caps the retries after the first attempt; 0 means
	// retry forever.
	MaxRetries int
}

// Retry implements the public methods necessary to control an exponential-
// backoff retry loop. Use Start to construct one. The usual pattern:
//
//	for r := retry.StartWithCtx(ctx, opts); r.Next(); {
//	    // attempt
//	}
//	// here the loop gave up: ctx canceled, Closer fired, or MaxRetries.
type Retry struct {
	opts           Options
	ctx            context.Context
	currentAttempt int
	isReset        bool
}

// Start returns a new Retry initialized to its first attempt.
func Start(opts Options) Retry {
	return StartWithCtx(context.Background(), opts)
}

// StartWithCtx is like Start, but the loop also terminates when the ctx
// is done.
func StartWithCtx(ctx context.Context, opts Options) Retry {
	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = 50 * time.Millisecond
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = 2 * time.Second
	}
	if opts.RandomizationFactor == 0 {
		opts.RandomizationFactor = 0.15
	}
	if opts.Multiplier == 0 {
		opts.Multiplier = 2
	}

	r := Retry{opts: opts, ctx: ctx}
	r.Reset()
	return r
}

// Reset resets the Retry to its initial state, meaning that the next call
// to Next will return true immediately and subsequent calls will behave
// as if they had followed the very first attempt (i.e. their backoffs
// will be short). Invoke when the reason for the retries has been
// resolved partway through the loop, or when the next wait has already
// been served out of band.
func (r *Retry) Reset() {
	select {
	case <-r.opts.Closer:
		// When the closer has fired, you can't keep going.
	case <-r.ctx.Done():
		// When the context was canceled, you can't keep going.
	default:
		r.currentAttempt = 0
		r.isReset = true
	}
}

// CurrentAttempt returns the number of the attempt the loop is on,
// starting at 0.
func (r *Retry) CurrentAttempt() int {
	return r.currentAttempt
}

func (r *Retry) retryIn() time.Duration {
	backoff := float64(r.opts.InitialBackoff) * math.Pow(r.opts.Multiplier, float64(r.currentAttempt))
	if maxBackoff := float64(r.opts.MaxBackoff); backoff > maxBackoff {
		backoff = maxBackoff
	}

	delta := r.opts.RandomizationFactor * backoff
	// A random value from the range [backoff - delta, backoff + delta],
	// never above the cap.
	backoff = backoff - delta + rand.Float64()*(2*delta)
	if maxBackoff := float64(r.opts.MaxBackoff); backoff > maxBackoff {
		backoff = maxBackoff
	}
	return time.Duration(backoff)
}

// Next returns whether the retry loop should continue, and blocks for the
// appropriate length of time before yielding back to the caller. The
// first call returns true immediately. Next returns false when the ctx is
// done, the Closer has fired, or MaxRetries is exhausted.
func (r *Retry) Next() bool {
	if r.isReset {
		r.isReset = false
		return true
	}

	if r.opts.MaxRetries > 0 && r.currentAttempt >= r.opts.MaxRetries {
		return false
	}

	if d := r.retryIn(); d > 0 {
		select {
		case <-time.After(d):
		case <-r.opts.Closer:
			return false
		case <-r.ctx.Done():
			return false
		}
	} else {
		// Zero backoff still yields to cancellation.
		select {
		case <-r.opts.Closer:
			return false
		case <-r.ctx.Done():
			return false
		default:
		}
	}
	r.currentAttempt++
	return true
}
