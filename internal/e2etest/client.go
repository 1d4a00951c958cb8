// Package e2etest drives a running game server over its JSON API. It backs the web server tests and the smoke test.
package e2etest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/game"
	"github.com/myrjola/compassmystery/internal/models"
	"github.com/myrjola/compassmystery/internal/responsecache"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return http.StatusText(e.Status) + ": " + e.Message
}

type Client struct {
	client *http.Client
	url    string
}

// NewClient creates an HTTP client with a cookie jar so that the server can remember the game session.
func NewClient(url string) (*Client, error) {
	jar, err := newLoopbackCookieJar()
	if err != nil {
		return nil, errors.Wrap(err, "create cookie jar")
	}
	return &Client{
		client: &http.Client{Jar: jar},
		url:    url,
	}, nil
}

// WaitForReady calls the specified endpoint until it gets a HTTP 200 Success
// response or until the context is cancelled or the 1-second timeout is reached.
func (c *Client) WaitForReady(ctx context.Context, urlPath string) error {
	timeout := 1 * time.Second
	startTime := time.Now()
	for {
		resp, err := c.do(ctx, http.MethodGet, urlPath, nil)
		if err == nil {
			if err = resp.Body.Close(); err != nil {
				return errors.Wrap(err, "close response body")
			}
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "context cancelled")
		default:
			if time.Since(startTime) >= timeout {
				return errors.New("timeout waiting for endpoint to be ready")
			}
			time.Sleep(100 * time.Millisecond) //nolint:mnd // 100ms
		}
	}
}

// StartSession starts a game. The server also remembers it in the session cookie.
func (c *Client) StartSession(ctx context.Context) (game.StateView, error) {
	var state game.StateView
	err := c.call(ctx, http.MethodPost, "/session/start", nil, &state)
	return state, errors.Wrap(err, "start session")
}

// Act sends a free text action. An empty sessionID uses the session remembered in the cookie.
func (c *Client) Act(ctx context.Context, sessionID, text string) (game.ActionResult, error) {
	var result game.ActionResult
	body := map[string]string{"session_id": sessionID, "text": text}
	err := c.call(ctx, http.MethodPost, "/session/action", body, &result)
	return result, errors.Wrap(err, "act", slog.String("text", text))
}

func (c *Client) State(ctx context.Context, sessionID string) (game.StateView, error) {
	var state game.StateView
	err := c.call(ctx, http.MethodGet, "/session/"+sessionID+"/state", nil, &state)
	return state, errors.Wrap(err, "get state")
}

func (c *Client) Report(ctx context.Context) (game.Report, error) {
	var report game.Report
	err := c.call(ctx, http.MethodGet, "/evaluation/report", nil, &report)
	return report, errors.Wrap(err, "get evaluation report")
}

func (c *Client) EvaluationRecords(ctx context.Context) ([]models.EvaluationRecord, error) {
	var records []models.EvaluationRecord
	err := c.call(ctx, http.MethodGet, "/evaluation/records", nil, &records)
	return records, errors.Wrap(err, "get evaluation records")
}

func (c *Client) ResetEvaluation(ctx context.Context) error {
	return errors.Wrap(c.call(ctx, http.MethodPost, "/evaluation/reset", nil, nil), "reset evaluation")
}

func (c *Client) CacheStats(ctx context.Context) (responsecache.Stats, error) {
	var stats responsecache.Stats
	err := c.call(ctx, http.MethodGet, "/debug/cache-stats", nil, &stats)
	return stats, errors.Wrap(err, "get cache stats")
}

// Get fetches a URL and returns the response. The caller closes the body.
func (c *Client) Get(ctx context.Context, urlPath string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, urlPath, nil)
}

// call sends body as JSON and decodes a successful response into out when out is not nil. Error responses become
// *APIError.
func (c *Client) call(ctx context.Context, method, urlPath string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(b)
	}
	resp, err := c.do(ctx, method, urlPath, reader)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response", slog.String("path", urlPath))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, urlPath string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url+urlPath, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	return resp, nil
}
