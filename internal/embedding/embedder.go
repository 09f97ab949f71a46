// Package embedding is the gateway to the external embedding service. It
// batches requests, retries rate limits and normalizes every vector to unit
// length so inner product equals cosine similarity.
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mike-a-ellis/docqa/internal/rag"
)

const (
	// DefaultBatchSize keeps each request well under the service's input limits.
	DefaultBatchSize = 128

	// normEpsilon guards the division for zero vectors.
	normEpsilon = 1e-12
)

// Embedder generates unit-length embeddings for text.
type Embedder struct {
	service   Service
	batchSize int
	backoff   func() backoff.BackOff
}

// NewEmbedder creates a new Embedder with the given service and optional batch size.
// If batchSize is 0, DefaultBatchSize (128) is used.
func NewEmbedder(service Service, batchSize int) *Embedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Embedder{
		service:   service,
		batchSize: batchSize,
		backoff:   defaultBackoff,
	}
}

// Embed generates normalized embeddings for texts, in input order.
// Any batch that comes back empty aborts the whole call with rag.ErrEmbedding.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	allEmbeddings := make([][]float32, 0, len(texts))

	// Process in batches
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		embeddings, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, rag.NewError(rag.ErrEmbedding, "embed", fmt.Errorf("batch %d-%d: %w", i, end, err))
		}
		if len(embeddings) == 0 {
			return nil, rag.Errorf(rag.ErrEmbedding, "embed", "batch %d-%d: service returned no vectors", i, end)
		}
		if len(embeddings) != len(batch) {
			return nil, rag.Errorf(rag.ErrEmbedding, "embed", "batch %d-%d: got %d vectors for %d texts",
				i, end, len(embeddings), len(batch))
		}

		for _, v := range embeddings {
			allEmbeddings = append(allEmbeddings, Normalize(v))
		}
	}

	return allEmbeddings, nil
}

// EmbedQuery generates one normalized embedding for a query.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// embedBatchWithRetry calls the service for a single batch.
// Retries with exponential backoff on rate limit errors (HTTP 429).
// Other errors are treated as permanent and fail immediately.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		out, err := e.service.EmbedBatch(ctx, texts)
		if err != nil {
			if IsRateLimitError(err) {
				return err // Will retry with backoff
			}
			return backoff.Permanent(err)
		}
		embeddings = out
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(e.backoff(), ctx))
	return embeddings, err
}

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// Normalize returns v / (||v|| + 1e-12). The input is not modified.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + normEpsilon

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
