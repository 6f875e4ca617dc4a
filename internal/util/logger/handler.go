package logger

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
)

// subsystemHandler 为 slog.Handler 加上可动态调整的级别和 subsystem 属性
type subsystemHandler struct {
	level *atomic.Int64
	inner slog.Handler
}

func newSubsystemHandler(subsystem string, level slog.Level, format Format) *subsystemHandler {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				a.Key = "ts"
			case slog.LevelKey:
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(strings.ToLower(lvl.String()))
				}
			}
			return a
		},
	}

	var inner slog.Handler
	if format == FormatJSON {
		inner = slog.NewJSONHandler(switchWriter{}, opts)
	} else {
		inner = slog.NewTextHandler(switchWriter{}, opts)
	}

	h := &subsystemHandler{
		level: new(atomic.Int64),
		inner: inner.WithAttrs([]slog.Attr{slog.String("subsystem", subsystem)}),
	}
	h.level.Store(int64(level))
	return h
}

func (h *subsystemHandler) Enabled(_ context.Context, level slog.Level) bool {
	return int64(level) >= h.level.Load()
}

func (h *subsystemHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

// WithAttrs 派生的 Handler 与父 Handler 共享级别
func (h *subsystemHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &subsystemHandler{level: h.level, inner: h.inner.WithAttrs(attrs)}
}

func (h *subsystemHandler) WithGroup(name string) slog.Handler {
	return &subsystemHandler{level: h.level, inner: h.inner.WithGroup(name)}
}

func (h *subsystemHandler) setLevel(level slog.Level) {
	h.level.Store(int64(level))
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
