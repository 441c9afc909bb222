package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_ContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, true, slog.LevelInfo)

	ctx := AppendCtx(context.Background(), slog.String("app", "ctl"))
	ctx = AppendCtx(ctx, slog.Int("run", 2))
	log.InfoContext(ctx, "hello", "k", "v")
	log.DebugContext(ctx, "hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "ctl", rec["app"])
	assert.Equal(t, float64(2), rec["run"])
	assert.Equal(t, "v", rec["k"])
}

func TestLogger_WithKeepsContext(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, false, slog.LevelDebug).With("session", "abc")
	log.DebugContext(AppendCtx(context.Background(), slog.String("app", "ctl")), "msg")
	assert.Contains(t, buf.String(), "session=abc")
	assert.Contains(t, buf.String(), "app=ctl")
}

func TestFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.log")
	w := FileWriter(path, 1, 2)
	Logger(w, false, slog.LevelInfo).Info("to file")
	require.NoError(t, w.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "to file")
}
