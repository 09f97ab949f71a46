// Package retriever finds the chunks most similar to a query in a collection.
package retriever

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mike-a-ellis/docqa/internal/chunker"
	"github.com/mike-a-ellis/docqa/internal/rag"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

const (
	DefaultK       = 5
	DefaultConfMin = 0.20
)

// QueryEmbedder embeds a single query into a unit vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SnapshotResolver returns the snapshot to search ("" means the active collection).
type SnapshotResolver interface {
	Resolve(ctx context.Context, collectionID string) (*storage.Snapshot, error)
}

// Result holds the top chunks of one query, best first.
type Result struct {
	Collection string
	Generation string
	Chunks     []chunker.Chunk
	Scores     []float32
}

// MaxScore returns the best score, or 0 when nothing was found.
func (r *Result) MaxScore() float32 {
	if len(r.Scores) == 0 {
		return 0
	}
	return r.Scores[0]
}

// Confident reports whether the best score reaches min. An empty result is never confident.
func (r *Result) Confident(min float32) bool {
	return len(r.Scores) > 0 && r.MaxScore() >= min
}

// Retriever embeds queries and searches collection snapshots.
type Retriever struct {
	embedder QueryEmbedder
	resolver SnapshotResolver
	logger   *slog.Logger
}

// New creates a retriever.
func New(embedder QueryEmbedder, resolver SnapshotResolver, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, resolver: resolver, logger: logger}
}

// Retrieve returns the k chunks whose embeddings have the highest inner
// product with the query. The snapshot is resolved once, so the chunks and
// scores always belong to a single generation.
func (r *Retriever) Retrieve(ctx context.Context, query, collectionID string, k int) (*Result, error) {
	if k <= 0 {
		k = DefaultK
	}

	snap, err := r.resolver.Resolve(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := snap.Index.Search(vec, k)
	if err != nil {
		return nil, rag.NewError(rag.ErrEmbedding, "retrieve", fmt.Errorf("search: %w", err))
	}

	res := &Result{
		Collection: snap.Provenance.CollectionID,
		Generation: snap.Provenance.Generation,
		Chunks:     make([]chunker.Chunk, 0, len(hits)),
		Scores:     make([]float32, 0, len(hits)),
	}
	for _, h := range hits {
		res.Chunks = append(res.Chunks, snap.Chunks[h.Row])
		res.Scores = append(res.Scores, h.Score)
	}

	r.logger.Debug("retrieved", "collection", res.Collection, "k", k, "hits", len(hits), "max_score", res.MaxScore())
	return res, nil
}
