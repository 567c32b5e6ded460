// Zerolog-backed implementation of the Logger interface.
//
// Log records are emitted as JSON lines. Error values created by pkg/errors
// carry cockroachdb stack traces; Error extracts them into a dedicated
// attribute so a single log line is enough to locate a failure.

package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
)

// zerologLogger adapts a zerolog.Logger to the Logger interface.
type zerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog.Logger. Useful when a caller
// wants full control over output and formatting.
func NewZerologLogger(zl zerolog.Logger) Logger {
	return &zerologLogger{zl: zl}
}

// Debug implements Logger.Debug.
func (l *zerologLogger) Debug(msg string, fields ...any) {
	appendFields(l.zl.Debug(), fields).Msg(msg)
}

// Info implements Logger.Info.
func (l *zerologLogger) Info(msg string, fields ...any) {
	appendFields(l.zl.Info(), fields).Msg(msg)
}

// Warn implements Logger.Warn.
func (l *zerologLogger) Warn(msg string, fields ...any) {
	appendFields(l.zl.Warn(), fields).Msg(msg)
}

// Error implements Logger.Error. A bare error passed as the first field is
// attached under the standard error key, and the first error value found in
// the fields has its stack trace extracted into StacktraceKey.
func (l *zerologLogger) Error(msg string, fields ...any) {
	e := l.zl.Error()

	rest := fields
	if len(fields)%2 == 1 {
		if err, ok := fields[0].(error); ok {
			e = e.Err(err)
			if st := extractStacktrace(err); st != "" {
				e = e.Str(StacktraceKey, st)
			}
			rest = fields[1:]
		}
	}

	for i := 0; i+1 < len(rest); i += 2 {
		if err, ok := rest[i+1].(error); ok {
			if st := extractStacktrace(err); st != "" {
				e = e.Str(StacktraceKey, st)
			}
			break
		}
	}

	appendFields(e, rest).Msg(msg)
}

// With implements Logger.With.
func (l *zerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key := fieldKey(fields[i])
		switch v := fields[i+1].(type) {
		case string:
			ctx = ctx.Str(key, v)
		case bool:
			ctx = ctx.Bool(key, v)
		case int:
			ctx = ctx.Int(key, v)
		case int64:
			ctx = ctx.Int64(key, v)
		case uint64:
			ctx = ctx.Uint64(key, v)
		case float64:
			ctx = ctx.Float64(key, v)
		case time.Duration:
			ctx = ctx.Dur(key, v)
		case error:
			ctx = ctx.AnErr(key, v)
		default:
			ctx = ctx.Interface(key, v)
		}
	}
	return &zerologLogger{zl: ctx.Logger()}
}

// Enabled implements Logger.Enabled.
func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	zlevel := toZerologLevel(level)
	if zlevel < zerolog.GlobalLevel() {
		return false
	}
	return zlevel >= l.zl.GetLevel()
}

// appendFields adds alternating key-value pairs to a zerolog event. Values
// implementing zerolog.LogObjectMarshaler are expanded into nested objects;
// a dangling key without a value is dropped.
func appendFields(e *zerolog.Event, fields []any) *zerolog.Event {
	for i := 0; i+1 < len(fields); i += 2 {
		key := fieldKey(fields[i])
		switch v := fields[i+1].(type) {
		case zerolog.LogObjectMarshaler:
			e = e.Object(key, v)
		case error:
			e = e.AnErr(key, v)
		case string:
			e = e.Str(key, v)
		case bool:
			e = e.Bool(key, v)
		case int:
			e = e.Int(key, v)
		case int64:
			e = e.Int64(key, v)
		case uint64:
			e = e.Uint64(key, v)
		case float64:
			e = e.Float64(key, v)
		case []float64:
			e = e.Floats64(key, v)
		case []int:
			e = e.Ints(key, v)
		case []string:
			e = e.Strs(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}

func fieldKey(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", k)
}

// toZerologLevel converts a slog-compatible Level to a zerolog.Level.
func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// extractStacktrace pulls the cockroachdb/errors stack trace out of an
// error, returning "" when none is attached.
func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}

// ===========================================================================
//
//	Default provider
//
// ===========================================================================

// zerologProvider is the process-wide LoggerProvider backed by zerolog.
type zerologProvider struct {
	mu   sync.RWMutex
	root zerolog.Logger
}

var (
	defaultOnce     sync.Once
	defaultInstance *zerologProvider
)

func defaultProvider() *zerologProvider {
	defaultOnce.Do(func() {
		defaultInstance = &zerologProvider{
			root: zerolog.New(os.Stderr).With().Timestamp().Logger(),
		}
		// Route pkg/errors warnings into the structured log stream.
		smErrors.SetZerologWarnFunc(func(w error) {
			defaultInstance.GetLoggerWithName("warnings").Warn(w.Error(), "warning", w)
		})
	})
	return defaultInstance
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *zerologProvider) GetLogger() Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &zerologLogger{zl: p.root}
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *zerologProvider) GetLoggerWithName(name string) Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &zerologLogger{zl: p.root.With().Str("logger", name).Logger()}
}

// SetLevel implements LoggerProvider.SetLevel. The level applies globally,
// including to loggers created before the call.
func (p *zerologProvider) SetLevel(level Level) {
	zerolog.SetGlobalLevel(toZerologLevel(level))
}

// SetOutput redirects all loggers created afterwards to w.
func (p *zerologProvider) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.root = zerolog.New(w).With().Timestamp().Logger()
}

// GetLogger returns the default logger.
func GetLogger() Logger {
	return defaultProvider().GetLogger()
}

// GetLoggerWithName returns a logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	return defaultProvider().GetLoggerWithName(name)
}

// SetLevel sets the minimum level emitted by the default provider.
func SetLevel(level Level) {
	defaultProvider().SetLevel(level)
}

// SetOutput redirects the default provider's output. The CLI uses this to
// switch between machine-readable JSON and a console writer.
func SetOutput(w io.Writer) {
	defaultProvider().SetOutput(w)
}
