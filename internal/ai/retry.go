package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/metrics"
	"golang.org/x/time/rate"
)

type RetryConfig struct {
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// MaxTries is the total number of attempts including the first.
	MaxTries uint
	// RPS limits the request rate to the backend across all callers.
	RPS float64
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Timeout:         20 * time.Second,       //nolint:mnd // generous for LLMs
		MaxTries:        3,                      //nolint:mnd // two retries
		RPS:             5,                      //nolint:mnd // well within free tier quotas
		InitialInterval: 500 * time.Millisecond, //nolint:mnd // backoff doubles from here
	}
}

// Retrying wraps a Backend with rate limiting, per attempt timeouts and exponential backoff. Authorization
// failures are not retried.
type Retrying struct {
	backend Backend
	cfg     RetryConfig
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewRetrying(backend Backend, cfg RetryConfig, mtr *metrics.Metrics, logger *slog.Logger) *Retrying {
	return &Retrying{
		backend: backend,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), max(1, int(cfg.RPS))),
		metrics: mtr,
		logger:  logger.With("source", "RetryingBackend"),
	}
}

func (r *Retrying) Complete(ctx context.Context, prompt string) (string, error) {
	attempt := 0
	operation := func() (string, error) {
		attempt++
		if err := r.limiter.Wait(ctx); err != nil {
			return "", backoff.Permanent(errors.Wrap(err, "wait for rate limiter"))
		}
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()

		start := time.Now()
		completion, err := r.backend.Complete(attemptCtx, prompt)
		r.metrics.RecordBackendLatency(time.Since(start))
		if err == nil {
			return completion, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", backoff.Permanent(ctxErr)
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
			err = errors.Join(ErrTimeout, err)
		}
		kind := ErrorKind(err)
		r.metrics.RecordBackendError(kind)
		r.logger.LogAttrs(ctx, slog.LevelWarn, "generation attempt failed",
			slog.Int("attempt", attempt), slog.String("kind", kind), errors.SlogError(err))
		if errors.Is(err, ErrAuth) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	completion, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.cfg.MaxTries),
	)
	if err != nil {
		return "", errors.Wrap(err, "complete with retries", slog.Int("attempts", attempt))
	}
	return completion, nil
}
