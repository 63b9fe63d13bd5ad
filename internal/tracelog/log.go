// Package tracelog provides the small structured-logging facade used
// throughout the trace and tracesession packages.
//
// The core never logs by default: trace.Open and Cursor operations are
// silent unless the caller supplies a Logger through OpenOptions. When no
// Logger is supplied, a Logger filtered to LevelError writing to os.Stderr
// is used, mirroring how a library should behave when embedded.
package tracelog

import (
	"fmt"
	"log"
	"os"
	"time"
)

// Level is the severity of a log record.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the minimal structured-logging interface the rest of this
// module depends on. Key/value pairs are logged in order; an odd number of
// keyvals pads with "MISSING".
type Logger interface {
	Log(level Level, keyvals ...interface{}) error
}

// StdLogger adapts the standard library's *log.Logger to Logger.
type StdLogger struct {
	log *log.Logger
}

// NewStdLogger returns a Logger that writes to w using the standard
// library's log package, with a timestamp prefix.
func NewStdLogger(w interface{ Write([]byte) (int, error) }) *StdLogger {
	return &StdLogger{log: log.New(w, "", 0)}
}

func (l *StdLogger) Log(level Level, keyvals ...interface{}) error {
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "MISSING")
	}
	buf := fmt.Sprintf("%s level=%s", time.Now().Format(time.RFC3339), level)
	for i := 0; i < len(keyvals); i += 2 {
		buf += fmt.Sprintf(" %v=%v", keyvals[i], keyvals[i+1])
	}
	l.log.Println(buf)
	return nil
}

// FilterLogger wraps a Logger and drops records below a minimum level.
type FilterLogger struct {
	next Logger
	min  Level
}

// FilterLevel configures the minimum level a FilterLogger will pass through.
type filterOption func(*FilterLogger)

func FilterLevel(level Level) filterOption {
	return func(f *FilterLogger) { f.min = level }
}

// NewFilter returns a Logger that forwards to next only records at or above
// the configured level (LevelError by default).
func NewFilter(next Logger, opts ...filterOption) *FilterLogger {
	f := &FilterLogger{next: next, min: LevelError}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FilterLogger) Log(level Level, keyvals ...interface{}) error {
	if level < f.min {
		return nil
	}
	return f.next.Log(level, keyvals...)
}

// Helper provides leveled, printf-style convenience methods over a Logger.
type Helper struct {
	logger Logger
}

// NewHelper wraps logger with Debugf/Infof/Warnf/Errorf helpers.
func NewHelper(logger Logger) *Helper {
	return &Helper{logger: logger}
}

func (h *Helper) Debugf(format string, args ...interface{}) {
	h.log(LevelDebug, format, args...)
}

func (h *Helper) Infof(format string, args ...interface{}) {
	h.log(LevelInfo, format, args...)
}

func (h *Helper) Warnf(format string, args ...interface{}) {
	h.log(LevelWarn, format, args...)
}

func (h *Helper) Errorf(format string, args ...interface{}) {
	h.log(LevelError, format, args...)
}

func (h *Helper) log(level Level, format string, args ...interface{}) {
	if h == nil || h.logger == nil {
		return
	}
	_ = h.logger.Log(level, "msg", fmt.Sprintf(format, args...))
}

// Default returns the Helper used when no Logger is configured: errors only,
// written to stderr.
func Default() *Helper {
	return NewHelper(NewFilter(NewStdLogger(stderrWriter{}), FilterLevel(LevelError)))
}

type stderrWriter struct{}

func (stderrWriter) Write(p []byte) (int, error) {
	return os.Stderr.Write(p)
}
