// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package log provides leveled, context-tagged logging. Tags attached to
// the context via logtags are rendered as a bracketed prefix on every
// line, so a transaction's log output can be grepped by its id.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/txnkit/pkg/util/syncutil"
	"github.com/cockroachdb/txnkit/pkg/util/timeutil"
)

type severity int

const (
	severityInfo severity = iota
	severityWarning
	severityError
	severityFatal
)

var severityChar = [...]byte{'I', 'W', 'E', 'F'}

var logging struct {
	mu struct {
		syncutil.Mutex
		w io.Writer
	}
	verbosity atomic.Int32
}

func init() {
	logging.mu.w = os.Stderr
}

// SetVerbosity sets the level below which V returns true. The default
// verbosity is 0, which suppresses VEventf output.
func SetVerbosity(level int32) {
	logging.verbosity.Store(level)
}

// V returns whether logging is enabled at the given verbosity level.
func V(level int32) bool {
	return logging.verbosity.Load() >= level
}

// Infof logs to the INFO level.
func Infof(ctx context.Context, format string, args ...interface{}) {
	output(ctx, severityInfo, format, args...)
}

// Warningf logs to the WARNING level.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	output(ctx, severityWarning, format, args...)
}

// Errorf logs to the ERROR level.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	output(ctx, severityError, format, args...)
}

// Fatalf logs to the ERROR level and terminates the process.
func Fatalf(ctx context.Context, format string, args ...interface{}) {
	output(ctx, severityFatal, format, args...)
	os.Exit(255)
}

// VEventf logs to the INFO level whenever logging is enabled at the given
// verbosity level. It is the kit's analogue of trace events: cheap to
// leave in hot paths, visible when verbosity is raised.
func VEventf(ctx context.Context, level int32, format string, args ...interface{}) {
	if V(level) {
		output(ctx, severityInfo, format, args...)
	}
}

// TestingRedirect sends log output to w until the returned restore
// function is called. Tests use it to assert on logged lines.
func TestingRedirect(w io.Writer) func() {
	logging.mu.Lock()
	defer logging.mu.Unlock()
	prev := logging.mu.w
	logging.mu.w = w
	return func() {
		logging.mu.Lock()
		defer logging.mu.Unlock()
		logging.mu.w = prev
	}
}

func output(ctx context.Context, sev severity, format string, args ...interface{}) {
	file, line := caller(3)
	msg := redact.Sprintf(format, args...).StripMarkers()
	var tags string
	if b := logtags.FromContext(ctx); b != nil {
		tags = " [" + b.String() + "]"
	}
	line1 := fmt.Sprintf("%c%s %s:%d%s %s\n",
		severityChar[sev], timeutil.Now().Format("060102 15:04:05.000000"),
		file, line, tags, msg)

	logging.mu.Lock()
	defer logging.mu.Unlock()
	fmt.Fprint(logging.mu.w, line1)
}

func caller(depth int) (string, int) {
	_, file, line, ok := runtime.Caller(depth)
	if !ok {
		return "???", 0
	}
	return filepath.Base(file), line
}
