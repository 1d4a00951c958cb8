package ai

import (
	"context"
	"log/slog"
	"strings"

	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/sashabaranov/go-openai"
)

const (
	DefaultOpenAIModel = openai.GPT3Dot5Turbo1106
	MaxTokens          = 400
	temperature        = 0.7
)

type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a chat completion backend. An empty model selects DefaultOpenAIModel.
func NewOpenAI(apiKey string, model string) *OpenAI {
	return NewOpenAIWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewOpenAIWithConfig allows pointing the client to another base URL, e.g. a test server.
func NewOpenAIWithConfig(cfg openai.ClientConfig, model string) *OpenAI {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	completion, err := o.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
			Model:       o.model,
			MaxTokens:   MaxTokens,
			Temperature: temperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: SystemInstruction},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		},
	)
	if err != nil {
		return "", errors.Wrap(classifyOpenAI(ctx, err), "create chat completion", slog.String("model", o.model))
	}
	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		return "", errors.Wrap(ErrEmptyCompletion, "create chat completion", slog.String("model", o.model))
	}
	return completion.Choices[0].Message.Content, nil
}

func classifyOpenAI(ctx context.Context, err error) error {
	var (
		apiErr *openai.APIError
		reqErr *openai.RequestError
	)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return classify(err, ErrTimeout)
	case errors.As(err, &apiErr):
		return classify(err, classifyStatus(apiErr.HTTPStatusCode))
	case errors.As(err, &reqErr):
		return classify(err, classifyStatus(reqErr.HTTPStatusCode))
	default:
		return err
	}
}
