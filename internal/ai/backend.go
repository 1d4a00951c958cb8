// Package ai talks to the text generation services that voice the NPCs.
package ai

import (
	"context"

	"github.com/myrjola/compassmystery/internal/errors"
)

var (
	ErrTimeout         = errors.NewSentinel("generation timed out")
	ErrRateLimited     = errors.NewSentinel("generation rate limited")
	ErrAuth            = errors.NewSentinel("generation not authorized")
	ErrEmptyCompletion = errors.NewSentinel("empty completion")
)

// SystemInstruction frames every request. The NPC specifics are part of the prompt itself.
const SystemInstruction = `You voice a character in an interactive mystery game. Stay in character, follow the ` +
	`rules in the prompt exactly and answer with a single JSON object of the form ` +
	`{"npc_reply": "...", "tone": "..."}.`

// Backend is an opaque text completion service.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, prompt string) (string, error)

func (f BackendFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ErrorKind labels a generation failure for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrEmptyCompletion):
		return "empty"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}

// classifyStatus maps an HTTP status code to a sentinel, nil when the status isn't special.
func classifyStatus(code int) error {
	switch code {
	case 401, 403: //nolint:mnd // unauthorized, forbidden
		return ErrAuth
	case 429: //nolint:mnd // too many requests
		return ErrRateLimited
	case 408, 504: //nolint:mnd // request timeout, gateway timeout
		return ErrTimeout
	default:
		return nil
	}
}

// classify attaches sentinel to err so that errors.Is works for both.
func classify(err, sentinel error) error {
	if sentinel == nil {
		return err
	}
	return errors.Join(sentinel, err)
}
