package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/myrjola/compassmystery/internal/config"
	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/game"
	"github.com/myrjola/compassmystery/internal/logging"
	"github.com/myrjola/compassmystery/internal/pprofserver"
	"github.com/myrjola/compassmystery/internal/setup"
	"github.com/myrjola/compassmystery/internal/sqlite"
	"github.com/prometheus/client_golang/prometheus"
)

type application struct {
	logger         *slog.Logger
	engine         *game.Engine
	db             *sqlite.Database
	sessionManager *scs.SessionManager
	registry       *prometheus.Registry
	// requestTimeout bounds a whole request, which may include several generation attempts.
	requestTimeout time.Duration
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	cfg, err := config.Load(lookupEnv)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	if cfg.PprofPort != "" {
		// Listening on loopback only so that it's not open to the world.
		pprofserver.Launch(ctx, cfg.PprofPort, logger)
	}

	var deps *setup.App
	if deps, err = setup.New(ctx, cfg, logger); err != nil {
		return errors.Wrap(err, "set up game")
	}
	defer func() {
		if closeErr := deps.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to close game", errors.SlogError(closeErr))
		}
	}()

	store := sqlite3store.NewWithCleanupInterval(deps.DB.ReadWrite.DB, time.Hour)
	defer store.StopCleanup()
	sessionManager := scs.New()
	sessionManager.Store = store
	sessionManager.Lifetime = cfg.SessionTTL
	sessionManager.Cookie.Name = "compass_session"
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode

	app := application{
		logger:         logger,
		engine:         deps.Engine,
		db:             deps.DB,
		sessionManager: sessionManager,
		registry:       deps.Registry,
		requestTimeout: cfg.BackendTimeout*time.Duration(cfg.BackendRetries) + 10*time.Second, //nolint:mnd // backoff
	}

	return app.configureAndStartServer(ctx, cfg.Addr)
}

func main() {
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   true,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure loading .env", errors.SlogError(err))
		os.Exit(1) //nolint:gocritic // stop is a no-op at exit
	}
	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		os.Exit(1)
	}
}
