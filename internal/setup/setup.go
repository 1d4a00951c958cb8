// Package setup assembles a game engine and its infrastructure from the runtime configuration.
package setup

import (
	"context"
	"log/slog"

	"github.com/myrjola/compassmystery/internal/ai"
	"github.com/myrjola/compassmystery/internal/config"
	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/game"
	"github.com/myrjola/compassmystery/internal/metrics"
	"github.com/myrjola/compassmystery/internal/repositories"
	"github.com/myrjola/compassmystery/internal/sqlite"
	"github.com/myrjola/compassmystery/internal/story"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sashabaranov/go-openai"
)

// App holds everything a host needs to serve the game.
type App struct {
	Config   config.Config
	Engine   *game.Engine
	DB       *sqlite.Database
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	closers []func() error
}

type options struct {
	backend ai.Backend
}

type Option func(*options)

// WithBackend replaces the configured generation backend. The backend is used as is, without retries.
func WithBackend(b ai.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// New loads the story, opens the database, selects the generation backend and restores persisted state. Expired
// sessions are purged from the database on start and hourly after that.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	truth, err := loadStory(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Registry: prometheus.NewRegistry()} //nolint:exhaustruct // filled below
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), //nolint:exhaustruct // defaults
	)
	app.Metrics = metrics.New(app.Registry)

	if app.DB, err = sqlite.NewDatabase(ctx, cfg.SQLiteURL, logger); err != nil {
		return nil, errors.Wrap(err, "open database", slog.String("url", cfg.SQLiteURL))
	}
	app.closers = append(app.closers, app.DB.Close)

	backend := o.backend
	if backend == nil {
		var closeBackend func() error
		if backend, closeBackend, err = NewBackend(ctx, cfg, app.Metrics, logger); err != nil {
			_ = app.Close()
			return nil, err
		}
		app.closers = append(app.closers, closeBackend)
	}

	app.Engine = game.NewEngine(truth, backend, logger,
		game.WithSessionTTL(cfg.SessionTTL),
		game.WithSessionStore(repositories.NewSessionRepository(app.DB, logger)),
		game.WithCacheStore(repositories.NewCacheRepository(app.DB, logger)),
		game.WithEvaluationSink(repositories.NewEvaluationRepository(app.DB, logger)),
		game.WithMetrics(app.Metrics),
	)
	app.Metrics.ObserveActiveSessions(app.Engine.ActiveSessions)

	if err = app.Engine.Warm(ctx); err != nil {
		_ = app.Close()
		return nil, errors.Wrap(err, "warm engine")
	}
	purgeSessions(ctx, app.Engine, logger)
	app.closers = append(app.closers, startSessionPurger(app.Engine, sessionPurgeInterval, logger))

	logger.LogAttrs(ctx, slog.LevelInfo, "game ready",
		slog.String("story", truth.Title()),
		slog.String("provider", cfg.AIProvider),
		slog.String("db", cfg.SQLiteURL))
	return app, nil
}

// Close releases the backend and the database in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func loadStory(cfg config.Config) (*story.Truth, error) {
	if cfg.StoryPath == "" {
		truth, err := story.Default()
		return truth, errors.Wrap(err, "load default story")
	}
	truth, err := story.LoadFile(cfg.StoryPath)
	return truth, errors.Wrap(err, "load story")
}

// NewBackend builds the configured provider behind rate limiting and retries.
//
// Without an API key every completion fails as unauthorized so that NPCs answer with their fallback replies.
func NewBackend(
	ctx context.Context,
	cfg config.Config,
	mtr *metrics.Metrics,
	logger *slog.Logger,
) (ai.Backend, func() error, error) {
	noop := func() error { return nil }
	key := cfg.APIKey()
	if key == "" {
		logger.LogAttrs(ctx, slog.LevelWarn, "no API key configured, NPCs will use fallback replies",
			slog.String("provider", cfg.AIProvider))
		return ai.BackendFunc(func(context.Context, string) (string, error) {
			return "", errors.Wrap(ai.ErrAuth, "no API key configured")
		}), noop, nil
	}

	var (
		backend ai.Backend
		closer  = noop
	)
	switch cfg.AIProvider {
	case config.ProviderOpenAI:
		clientCfg := openai.DefaultConfig(key)
		if cfg.OpenAIBaseURL != "" {
			clientCfg.BaseURL = cfg.OpenAIBaseURL
		}
		backend = ai.NewOpenAIWithConfig(clientCfg, cfg.Model)
	case config.ProviderGemini:
		g, err := ai.NewGemini(ctx, key, cfg.Model)
		if err != nil {
			return nil, nil, errors.Wrap(err, "create gemini backend")
		}
		backend, closer = g, g.Close
	default:
		return nil, nil, errors.Wrap(config.ErrInvalidConfig, "unknown provider "+cfg.AIProvider)
	}

	retryCfg := ai.DefaultRetryConfig()
	retryCfg.Timeout = cfg.BackendTimeout
	retryCfg.MaxTries = uint(cfg.BackendRetries) //nolint:gosec // validated to be positive
	retryCfg.RPS = cfg.BackendRPS
	return ai.NewRetrying(backend, retryCfg, mtr, logger), closer, nil
}
