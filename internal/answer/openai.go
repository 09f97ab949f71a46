package answer

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"

	"github.com/mike-a-ellis/docqa/internal/embedding"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 512
)

// OpenAICompleter answers with an OpenAI chat model.
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int64
}

// NewOpenAICompleter creates a completer with the given OpenAI client.
// An empty model selects DefaultModel.
func NewOpenAICompleter(client *openai.Client, model string) *OpenAICompleter {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAICompleter{
		client:      client,
		model:       model,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
}

// Complete sends the system and user messages. Rate limits are retried with
// exponential backoff; other errors fail immediately.
func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	var answer string

	operation := func() error {
		resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(system),
				openai.UserMessage(user),
			},
			Model:       openai.ChatModel(c.model),
			Temperature: openai.Float(c.temperature),
			MaxTokens:   openai.Int(c.maxTokens),
		})
		if err != nil {
			if embedding.IsRateLimitError(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("chat completion failed: %w", err))
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("chat completion returned no choices"))
		}
		answer = resp.Choices[0].Message.Content
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return answer, nil
}
