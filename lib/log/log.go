// Package log is a context wrapper around slog.Logger
package log

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"testing"
	"time"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"
	"cdr.dev/slog/sloggers/slogtest"

	"github.com/eivindml/marker-dispersion/lib/env"
)

var _default = slog.Make(sloghuman.Sink(os.Stderr)).Named("default")

type loggerKey struct{}

func from(ctx context.Context) slog.Logger {
	l, ok := ctx.Value(loggerKey{}).(slog.Logger)
	if !ok {
		_default.Warn(ctx, "missing slog.Logger in context, see lib/log.With", slog.F("stack", string(debug.Stack())))
		return _default
	}
	return l
}

func With(ctx context.Context, l slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// WithTB calls With with the result of slogtest.Make.
func WithTB(ctx context.Context, t testing.TB, opts *slogtest.Options) context.Context {
	l := slogtest.Make(t, opts)
	if env.Debug() {
		l = l.Leveled(slog.LevelDebug)
	}
	return With(ctx, l)
}

// Discard installs a logger that drops everything. Library callers that do not
// care about engine logs use it to silence the missing logger warning.
func Discard(ctx context.Context) context.Context {
	return With(ctx, slog.Make(sloghuman.Sink(io.Discard)))
}

// To installs a human readable logger writing to w at level.
func To(ctx context.Context, w io.Writer, level slog.Level) context.Context {
	return With(ctx, slog.Make(sloghuman.Sink(w)).Leveled(level))
}

func Debug(ctx context.Context, msg string, fields ...slog.Field) {
	slog.Helper()
	from(ctx).Debug(ctx, msg, args(fields)...)
}

func Warn(ctx context.Context, msg string, fields ...slog.Field) {
	slog.Helper()
	from(ctx).Warn(ctx, msg, args(fields)...)
}

// args adapts fields to the variadic any the slog methods take.
func args(fields []slog.Field) []any {
	a := make([]any, len(fields))
	for i, f := range fields {
		a[i] = f
	}
	return a
}

func Named(ctx context.Context, name string) context.Context {
	return With(ctx, from(ctx).Named(name))
}

// WithTimeout returns context.WithTimeout(ctx, timeout) but timeout is overridden with MD_TIMEOUT if set
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	t := timeout
	if seconds, has := env.Timeout(); has {
		t = time.Duration(seconds) * time.Second
	}
	if t <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, t)
}
