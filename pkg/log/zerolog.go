package log

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	hsmmerrors "github.com/YuminosukeSato/gohsmm/pkg/errors"
)

// zerologLogger adapts a zerolog.Logger to the Logger interface.
type zerologLogger struct {
	l zerolog.Logger
}

// NewZerologLogger returns a Logger backed by zerolog writing to w.
// Typed errors and warnings from pkg/errors implement
// zerolog.LogObjectMarshaler and are emitted as structured objects.
func NewZerologLogger(w io.Writer) Logger {
	return &zerologLogger{l: zerolog.New(w).With().Timestamp().Logger()}
}

func (z *zerologLogger) emit(e *zerolog.Event, msg string, fields []any) {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case zerolog.LogObjectMarshaler:
			e = e.Object(key, v)
		case error:
			e = e.AnErr(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}

func (z *zerologLogger) Debug(msg string, fields ...any) { z.emit(z.l.Debug(), msg, fields) }
func (z *zerologLogger) Info(msg string, fields ...any)  { z.emit(z.l.Info(), msg, fields) }
func (z *zerologLogger) Warn(msg string, fields ...any)  { z.emit(z.l.Warn(), msg, fields) }
func (z *zerologLogger) Error(msg string, fields ...any) { z.emit(z.l.Error(), msg, fields) }

func (z *zerologLogger) With(fields ...any) Logger {
	ctx := z.l.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, fields[i+1])
	}
	return &zerologLogger{l: ctx.Logger()}
}

func (z *zerologLogger) Enabled(ctx context.Context, level Level) bool {
	switch {
	case level <= LevelDebug:
		return z.l.GetLevel() <= zerolog.DebugLevel
	case level <= LevelInfo:
		return z.l.GetLevel() <= zerolog.InfoLevel
	case level <= LevelWarn:
		return z.l.GetLevel() <= zerolog.WarnLevel
	default:
		return z.l.GetLevel() <= zerolog.ErrorLevel
	}
}

// InstallZerologWarnHook routes library warnings (ConvergenceWarning and
// friends) through the given zerolog logger as structured objects.
func InstallZerologWarnHook(l zerolog.Logger) {
	hsmmerrors.SetZerologWarnFunc(func(warning error) {
		if obj, ok := warning.(zerolog.LogObjectMarshaler); ok {
			l.Warn().Object("warning", obj).Msg(warning.Error())
			return
		}
		l.Warn().Err(warning).Msg(warning.Error())
	})
}
