package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv(t *testing.T) {
	e := ParseEnv("swarm=debug, pubsub=error,warn,bogus=nope", "JSON")

	assert.Equal(t, slog.LevelWarn, e.DefaultLevel)
	assert.Equal(t, slog.LevelDebug, e.LevelFor("swarm"))
	assert.Equal(t, slog.LevelError, e.LevelFor("pubsub"))
	assert.Equal(t, slog.LevelWarn, e.LevelFor("noise"))
	assert.NotContains(t, e.Levels, "bogus")
	assert.Equal(t, FormatJSON, e.Format)
}

func TestParseEnv_Empty(t *testing.T) {
	e := ParseEnv("", "")
	assert.Equal(t, slog.LevelInfo, e.DefaultLevel)
	assert.Equal(t, FormatText, e.Format)
}

func TestLogger_OutputAndLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)

	l := Logger("logger-test")
	require.Same(t, l, Logger("logger-test"))

	SetLevel("logger-test", slog.LevelWarn)
	l.Info("hidden")
	l.With("k", "v").Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "subsystem=logger-test")
	assert.Contains(t, out, "k=v")

	SetLevel("logger-test", slog.LevelDebug)
	l.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
}

func TestZap_NopByDefault(t *testing.T) {
	t.Setenv("MESHCHAT_FX_DEBUG", "")
	z := Zap()
	require.NotNil(t, z)
	assert.False(t, z.Core().Enabled(-1))
}
