// SPDX-License-Identifier: Apache-2.0

// Package obs provides the process-wide observability state: a
// monotonically-increasing TraceId counter, a Logger that carries the
// current trace id explicitly for log-line prefixing, and the Prometheus counters
// exported in OpenMetrics text form. It is grounded on
// internal/logging/handler.go's trace-aware slog.Handler and
// internal/observability/server.go's registry-backed metrics, adapted
// from OpenTelemetry span ids to a plain integer TraceId.
package obs

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
)

// traceCounter backs NextTraceID. It wraps on overflow.
var traceCounter uint64

// NextTraceID returns the next value in the monotonically-increasing
// TraceId sequence, wrapping silently on uint64 overflow.
func NextTraceID() uint64 {
	return atomic.AddUint64(&traceCounter, 1)
}

// Logger carries the current trace id used for log-line prefixing. There
// is no package-level or goroutine-local current trace id: callers pass a
// *Logger through their call chain.
type Logger struct {
	traceID *uint64 // nil when no trace is current
	sink func(line string)
}

// NewLogger returns a Logger with no current trace id. sink receives
// every formatted line; a nil sink discards them (useful in tests).
func NewLogger(sink func(line string)) *Logger {
	return &Logger{sink: sink}
}

// WithTrace returns a copy of l scoped to traceID, for use inside one
// policy or program evaluation.
func (l *Logger) WithTrace(traceID uint64) *Logger {
	id := traceID
	return &Logger{traceID: &id, sink: l.sink}
}

// Log formats message as
// "[<RFC3339 timestamp>][<LEVEL>][trace:<N>] <message>", omitting the
// trace segment when no trace is current — and emits it to the sink.
func (l *Logger) Log(level, message string) string {
	line := FormatLine(level, message, l.traceID)
	if l.sink != nil {
		l.sink(line)
	}
	return line
}

// LogError formats an error alongside msg and emits it through l, the same
// way Log does. When err is an oops error (every LexError, ParseError, and
// evaluation error this module raises is), the rendered line additionally
// carries its code and context map instead of just err.Error(); any other
// error is logged plain.
func (l *Logger) LogError(msg string, err error) string {
	text := msg + ": " + err.Error()
	if oopsErr, ok := oops.AsOops(err); ok {
		text = msg
		if code := oopsErr.Code(); code != nil {
			text += fmt.Sprintf(" code=%v", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			text += fmt.Sprintf(" context=%v", ctx)
		}
		text += ": " + oopsErr.Error()
	}
	return l.Log("ERROR", text)
}

// FormatLine renders one log line. traceID is nil when no
// trace is current.
func FormatLine(level, message string, traceID *uint64) string {
	ts := time.Now().UTC().Format(time.RFC3339)
	if traceID == nil {
		return fmt.Sprintf("[%s][%s] %s", ts, level, message)
	}
	return fmt.Sprintf("[%s][%s][trace:%d] %s", ts, level, *traceID, message)
}
