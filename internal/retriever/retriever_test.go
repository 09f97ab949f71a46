package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/docqa/internal/chunker"
	"github.com/mike-a-ellis/docqa/internal/collection"
	"github.com/mike-a-ellis/docqa/internal/index"
	"github.com/mike-a-ellis/docqa/internal/rag"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

type mapEmbedder map[string][]float32

func (m mapEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, ok := m[text]
	if !ok {
		return nil, rag.Errorf(rag.ErrEmbedding, "embed", "no vector for %q", text)
	}
	return v, nil
}

func registryWith(t *testing.T, id string, vectors [][]float32, bodies []string) *collection.Registry {
	t.Helper()
	idx, err := index.Build(vectors)
	require.NoError(t, err)
	chunks := make([]chunker.Chunk, len(bodies))
	for i, b := range bodies {
		chunks[i] = chunker.Chunk{Index: i, Page: i + 1, Body: b}
	}
	r := collection.NewRegistry(nil, nil)
	r.Swap(&storage.Snapshot{
		Index:      idx,
		Chunks:     chunks,
		Provenance: storage.Provenance{CollectionID: id, Generation: "g1"},
	})
	return r
}

func TestRetrieve_TopK(t *testing.T) {
	reg := registryWith(t, "default",
		[][]float32{{1, 0}, {0, 1}, {0.6, 0.8}},
		[]string{"returns", "support", "mixed"})
	r := New(mapEmbedder{"support?": {0, 1}}, reg, nil)

	res, err := r.Retrieve(context.Background(), "support?", "", 2)

	require.NoError(t, err)
	assert.Equal(t, "default", res.Collection)
	assert.Equal(t, "g1", res.Generation)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, "support", res.Chunks[0].Body)
	assert.Equal(t, "mixed", res.Chunks[1].Body)
	assert.InDelta(t, 1.0, res.MaxScore(), 1e-6)
	assert.True(t, res.Confident(DefaultConfMin))
}

func TestRetrieve_DefaultKClampedToRows(t *testing.T) {
	reg := registryWith(t, "default", [][]float32{{1, 0}, {0, 1}}, []string{"a", "b"})
	r := New(mapEmbedder{"q": {1, 0}}, reg, nil)

	res, err := r.Retrieve(context.Background(), "q", "", 0)

	require.NoError(t, err)
	assert.Len(t, res.Chunks, 2)
}

func TestRetrieve_NoDocuments(t *testing.T) {
	r := New(mapEmbedder{}, collection.NewRegistry(nil, nil), nil)

	_, err := r.Retrieve(context.Background(), "q", "", 5)

	assert.ErrorIs(t, err, rag.ErrIndexUnavailable)
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	reg := registryWith(t, "default", [][]float32{{1, 0}}, []string{"a"})
	r := New(mapEmbedder{}, reg, nil)

	_, err := r.Retrieve(context.Background(), "unknown", "", 5)

	assert.ErrorIs(t, err, rag.ErrEmbedding)
}

func TestRetrieve_DimensionMismatch(t *testing.T) {
	reg := registryWith(t, "default", [][]float32{{1, 0}}, []string{"a"})
	r := New(mapEmbedder{"q": {1, 0, 0}}, reg, nil)

	_, err := r.Retrieve(context.Background(), "q", "", 5)

	assert.ErrorIs(t, err, index.ErrDimensionMismatch)
}

func TestResult_Gate(t *testing.T) {
	empty := &Result{}
	assert.False(t, empty.Confident(0))
	assert.Equal(t, float32(0), empty.MaxScore())

	low := &Result{Scores: []float32{0.19, 0.1}}
	assert.False(t, low.Confident(0.20))

	edge := &Result{Scores: []float32{0.20}}
	assert.True(t, edge.Confident(0.20))

	negative := &Result{Scores: []float32{-0.5}}
	assert.False(t, negative.Confident(0.20))
}
