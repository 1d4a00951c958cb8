package setup_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/myrjola/compassmystery/internal/ai"
	"github.com/myrjola/compassmystery/internal/config"
	"github.com/myrjola/compassmystery/internal/game"
	"github.com/myrjola/compassmystery/internal/setup"
	"github.com/myrjola/compassmystery/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load(testhelpers.LookupEnv(env))
	require.NoError(t, err)
	return cfg
}

func TestNew_restoresStateAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	logger := testhelpers.NewLogger(io.Discard)
	cfg := testConfig(t, map[string]string{
		"MYSTERY_SQLITE_URL": filepath.Join(t.TempDir(), "game.sqlite"),
	})
	backend := ai.BackendFunc(func(context.Context, string) (string, error) {
		return `{"npc_reply": "I have nothing to say to you.", "tone": "defensive"}`, nil
	})

	app, err := setup.New(ctx, cfg, logger, setup.WithBackend(backend))
	require.NoError(t, err)
	state, err := app.Engine.StartSession(ctx)
	require.NoError(t, err)
	_, err = app.Engine.ApplyAction(ctx, state.SessionID, "talk to draco: where were you?")
	require.NoError(t, err)
	report := app.Engine.EvaluationReport()
	require.NoError(t, app.Close())

	restarted, err := setup.New(ctx, cfg, logger, setup.WithBackend(backend))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, restarted.Close()) })

	got, err := restarted.Engine.State(ctx, state.SessionID)
	require.NoError(t, err)
	require.Len(t, got.History, 3)
	require.Equal(t, 1, restarted.Engine.CacheStats().Entries)
	require.Equal(t, report.Report, restarted.Engine.EvaluationReport().Report)
}

func TestNew_purgesExpiredSessions(t *testing.T) {
	ctx := context.Background()
	logger := testhelpers.NewLogger(io.Discard)
	cfg := testConfig(t, map[string]string{
		"MYSTERY_SQLITE_URL":  filepath.Join(t.TempDir(), "game.sqlite"),
		"MYSTERY_SESSION_TTL": "50ms",
	})
	backend := ai.BackendFunc(func(context.Context, string) (string, error) {
		return "", ai.ErrAuth
	})

	app, err := setup.New(ctx, cfg, logger, setup.WithBackend(backend))
	require.NoError(t, err)
	state, err := app.Engine.StartSession(ctx)
	require.NoError(t, err)
	require.NoError(t, app.Close())

	time.Sleep(100 * time.Millisecond)

	restarted, err := setup.New(ctx, cfg, logger, setup.WithBackend(backend))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, restarted.Close()) })

	var count int
	require.NoError(t, restarted.DB.ReadOnly.GetContext(ctx, &count, "SELECT COUNT(*) FROM game_sessions"))
	require.Zero(t, count)
	_, err = restarted.Engine.State(ctx, state.SessionID)
	require.ErrorIs(t, err, game.ErrUnknownSession)
}

func TestNewBackend_withoutKeyFallsBack(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, map[string]string{"MYSTERY_AI_PROVIDER": "openai"})

	backend, closeBackend, err := setup.NewBackend(ctx, cfg, nil, testhelpers.NewLogger(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, closeBackend()) })

	_, err = backend.Complete(ctx, "hello")
	require.ErrorIs(t, err, ai.ErrAuth)
}

func TestNew_invalidStory(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"MYSTERY_SQLITE_URL": ":memory:",
		"MYSTERY_STORY_PATH": filepath.Join(t.TempDir(), "missing.yaml"),
	})
	_, err := setup.New(context.Background(), cfg, testhelpers.NewLogger(io.Discard))
	require.Error(t, err)
}
