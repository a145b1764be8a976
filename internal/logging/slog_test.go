package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlogLoggerWritesLevelsAndAttributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	out := buf.String()
	for _, want := range []string{"level=DEBUG", "msg=dbg", "a=1", "level=INFO", "b=2", "level=WARN", "c=3", "level=ERROR", "d=4"} {
		assert.Contains(t, out, want)
	}
}

func TestSlogLoggerWithCarriesFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil))).With("provider", "dropbox")
	log.Info(context.Background(), "uploaded")

	assert.Contains(t, buf.String(), "provider=dropbox")
}

func TestNewFiltersBelowConfiguredLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, Options{Level: "warn"})
	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "key=value")
}

func TestNewJSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, Options{Level: "debug", Format: "json"})
	log.Debug(context.Background(), "probe", "folder", "id:abc")

	assert.Contains(t, buf.String(), `"msg":"probe"`)
	assert.Contains(t, buf.String(), `"folder":"id:abc"`)
}

func TestNopDiscards(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		NewNop().With("k", "v").Error(context.Background(), "ignored")
	})
}
