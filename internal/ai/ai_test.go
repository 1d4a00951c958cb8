package ai_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/myrjola/compassmystery/internal/ai"
	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/metrics"
	"github.com/myrjola/compassmystery/internal/testhelpers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

func fastRetries(tries uint) ai.RetryConfig {
	return ai.RetryConfig{
		Timeout:         time.Second,
		MaxTries:        tries,
		RPS:             1000,
		InitialInterval: time.Millisecond,
	}
}

var errFlaky = errors.NewSentinel("flaky")

func TestRetrying(t *testing.T) {
	tests := []struct {
		name      string
		failures  []error
		wantCalls int32
		wantErr   error
	}{
		{name: "first try", wantCalls: 1},
		{name: "recovers", failures: []error{ai.ErrRateLimited, errFlaky}, wantCalls: 3},
		{name: "exhausted", failures: []error{errFlaky, errFlaky, errFlaky, errFlaky}, wantCalls: 3, wantErr: errFlaky},
		{name: "auth is permanent", failures: []error{ai.ErrAuth}, wantCalls: 1, wantErr: ai.ErrAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			backend := ai.BackendFunc(func(_ context.Context, prompt string) (string, error) {
				n := calls.Add(1)
				if int(n) <= len(tt.failures) {
					return "", tt.failures[n-1]
				}
				return "reply to " + prompt, nil
			})
			r := ai.NewRetrying(backend, fastRetries(3), nil, testhelpers.NewLogger(io.Discard))

			got, err := r.Complete(context.Background(), "hello")
			require.Equal(t, tt.wantCalls, calls.Load())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "reply to hello", got)
		})
	}
}

func TestRetrying_attemptTimeout(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	backend := ai.BackendFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	cfg := fastRetries(2)
	cfg.Timeout = 10 * time.Millisecond
	r := ai.NewRetrying(backend, cfg, m, testhelpers.NewLogger(io.Discard))

	_, err := r.Complete(context.Background(), "hello")
	require.ErrorIs(t, err, ai.ErrTimeout)
	require.Equal(t, "timeout", ai.ErrorKind(err))
	require.InDelta(t, 2, testutil.ToFloat64(m.BackendErrors.WithLabelValues("timeout")), 0)
}

func TestRetrying_canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	backend := ai.BackendFunc(func(ctx context.Context, _ string) (string, error) {
		calls.Add(1)
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})
	r := ai.NewRetrying(backend, fastRetries(3), nil, testhelpers.NewLogger(io.Discard))

	_, err := r.Complete(ctx, "hello")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int32(1), calls.Load())
}

func TestErrorKind(t *testing.T) {
	require.Equal(t, "", ai.ErrorKind(nil))
	require.Equal(t, "rate_limited", ai.ErrorKind(errors.Wrap(ai.ErrRateLimited, "complete")))
	require.Equal(t, "auth", ai.ErrorKind(ai.ErrAuth))
	require.Equal(t, "empty", ai.ErrorKind(ai.ErrEmptyCompletion))
	require.Equal(t, "timeout", ai.ErrorKind(context.DeadlineExceeded))
	require.Equal(t, "other", ai.ErrorKind(errFlaky))
}

func newOpenAIServer(t *testing.T, status int, body string) *ai.OpenAI {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return ai.NewOpenAIWithConfig(cfg, "")
}

func TestOpenAI_Complete(t *testing.T) {
	o := newOpenAIServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"npc_reply\": \"Hmph.\"}"}}]
	}`)
	got, err := o.Complete(context.Background(), "Where were you?")
	require.NoError(t, err)
	require.JSONEq(t, `{"npc_reply": "Hmph."}`, got)
}

func TestOpenAI_errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			body:    `{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`,
			wantErr: ai.ErrAuth,
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{"error": {"message": "Rate limit reached", "type": "requests"}}`,
			wantErr: ai.ErrRateLimited,
		},
		{
			name:    "no choices",
			status:  http.StatusOK,
			body:    `{"id": "chatcmpl-1", "object": "chat.completion", "choices": []}`,
			wantErr: ai.ErrEmptyCompletion,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOpenAIServer(t, tt.status, tt.body)
			_, err := o.Complete(context.Background(), "Where were you?")
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
