package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/myrjola/compassmystery/internal/logging"
	"github.com/stretchr/testify/require"
)

func TestContextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(&buf, nil)))

	ctx := logging.WithAttrs(context.Background(), slog.String("session_id", "abc"))
	sibling := logging.WithAttrs(ctx, slog.String("npc", "draco"))
	_ = logging.WithAttrs(ctx, slog.String("npc", "evelyn"))

	logger.With("source", "test").LogAttrs(sibling, slog.LevelInfo, "asked")

	out := buf.String()
	require.Contains(t, out, "session_id=abc")
	require.Contains(t, out, "npc=draco")
	require.NotContains(t, out, "npc=evelyn")
	require.Contains(t, out, "source=test")
}
