package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is the OpenAI embedding model. The chunker's cl100k_base
// tokenizer matches its tokenization.
const DefaultModel = "text-embedding-3-large"

// Service is the external embedding service the gateway consumes.
type Service interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ClientConfig configures the OpenAI client.
type ClientConfig struct {
	APIKey  string
	BaseURL string // optional, for OpenAI-compatible endpoints
	Model   string
}

// Client wraps the OpenAI client for embedding generation.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a new OpenAI client for embedding generation.
// It returns an error if no API key is configured.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &Client{client: &client, model: cfg.Model}, nil
}

// Client returns the underlying OpenAI client for use in other packages (e.g., answer composition).
func (c *Client) Client() *openai.Client {
	return c.client
}

// EmbedBatch embeds one batch of texts. Vectors are returned in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, err
	}

	// The API tags each vector with its input position; do not trust response order.
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	embeddings := make([][]float32, len(data))
	for i, d := range data {
		embeddings[i] = toFloat32(d.Embedding)
	}
	return embeddings, nil
}

// IsRateLimitError checks if the error is a rate limit error (HTTP 429).
func IsRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but the index stores float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
