package ai

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/myrjola/compassmystery/internal/errors"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const DefaultGeminiModel = "gemini-1.5-flash"

type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

// NewGemini creates a Gemini backend. An empty model selects DefaultGeminiModel. Close releases the connection.
func NewGemini(ctx context.Context, apiKey string, model string, opts ...option.ClientOption) (*Gemini, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	m := client.GenerativeModel(model)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(SystemInstruction)}}
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(temperature)
	m.SetMaxOutputTokens(MaxTokens)
	return &Gemini{client: client, model: m, name: model}, nil
}

func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", errors.Wrap(classifyGemini(ctx, err), "generate content", slog.String("model", g.name))
	}
	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", errors.Wrap(ErrEmptyCompletion, "generate content", slog.String("model", g.name))
	}
	return text, nil
}

func (g *Gemini) Close() error {
	if err := g.client.Close(); err != nil {
		return errors.Wrap(err, "close gemini client")
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
		// The first candidate with content is the answer.
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

func classifyGemini(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return classify(err, ErrTimeout)
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() { //nolint:exhaustive // other codes are not special
	case codes.Unauthenticated, codes.PermissionDenied:
		return classify(err, ErrAuth)
	case codes.ResourceExhausted:
		return classify(err, ErrRateLimited)
	case codes.DeadlineExceeded:
		return classify(err, ErrTimeout)
	default:
		return err
	}
}
