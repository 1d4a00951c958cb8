package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/compassmystery/internal/e2etest"
	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/logging"
)

// TestPlaythrough plays a short session against a deployed server without touching the evaluation log.
func TestPlaythrough(ctx context.Context, client *e2etest.Client) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if err := client.WaitForReady(ctx, "/api/healthy"); err != nil {
		return errors.Wrap(err, "wait for server")
	}
	state, err := client.StartSession(ctx)
	if err != nil {
		return errors.Wrap(err, "start session")
	}
	ctx = logging.WithAttrs(ctx, slog.String("session_id", state.SessionID))

	for _, action := range []string{"go to the library", "inspect the torn page", "talk to evelyn: hello"} {
		if _, err = client.Act(ctx, state.SessionID, action); err != nil {
			return errors.Wrap(err, "act", slog.String("action", action))
		}
	}

	if state, err = client.State(ctx, state.SessionID); err != nil {
		return errors.Wrap(err, "get state")
	}
	if state.Location.ID != "library" || state.EvidenceCount != 1 {
		return errors.New("unexpected state",
			slog.String("location", state.Location.ID), slog.Int("evidence_count", state.EvidenceCount))
	}
	if _, err = client.CacheStats(ctx); err != nil {
		return errors.Wrap(err, "get cache stats")
	}
	return nil
}

func main() {
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only hostname to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname>")
		os.Exit(1)
	}

	var (
		url    = "https://" + os.Args[1]
		client *e2etest.Client
		err    error
	)
	ctx = logging.WithAttrs(ctx, slog.String("hostname", url))

	if client, err = e2etest.NewClient(url); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating client", errors.SlogError(err))
		os.Exit(1)
	}
	if err = TestPlaythrough(ctx, client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error playing through", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌")
	os.Exit(0)
}
