package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mike-a-ellis/docqa/internal/answer"
	"github.com/mike-a-ellis/docqa/internal/chunker"
	"github.com/mike-a-ellis/docqa/internal/collection"
	"github.com/mike-a-ellis/docqa/internal/embedding"
	"github.com/mike-a-ellis/docqa/internal/extract"
	"github.com/mike-a-ellis/docqa/internal/ingest"
	"github.com/mike-a-ellis/docqa/internal/memory"
	"github.com/mike-a-ellis/docqa/internal/metrics"
	"github.com/mike-a-ellis/docqa/internal/rag"
	"github.com/mike-a-ellis/docqa/internal/ragtest"
	"github.com/mike-a-ellis/docqa/internal/retriever"
)

const policyDoc = "The return policy allows 30 days.\fContact support at help@example.com."

type fixture struct {
	assistant *Assistant
	pipeline  *ingest.Pipeline
	registry  *collection.Registry
	completer *ragtest.Completer
	memory    *memory.InMemory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	service := ragtest.NewKeywordService()
	embedder := embedding.NewEmbedder(service, 0)
	registry := collection.NewRegistry(nil, nil)
	m := metrics.New()

	pipeline := ingest.NewPipeline(
		extract.NewExtractor(nil, nil, extract.Config{}, nil),
		chunker.NewChunker(chunker.WordTokenizer{}, 0),
		embedder, nil, nil, registry, m, nil,
	)
	completer := &ragtest.Completer{Reply: "  You have 30 days to return items.  "}
	mem := memory.NewInMemory()
	a := New(
		retriever.New(embedder, registry, nil),
		answer.NewComposer(completer),
		mem, registry, m, Config{}, nil,
	)
	return &fixture{assistant: a, pipeline: pipeline, registry: registry, completer: completer, memory: mem}
}

func (f *fixture) ingest(t *testing.T, doc, collectionID string) *ingest.Result {
	t.Helper()
	res, err := f.pipeline.Ingest(context.Background(), ingest.Request{
		Data: []byte(doc), Filename: "policy.txt", CollectionID: collectionID,
	})
	require.NoError(t, err)
	return res
}

func TestAsk_NoDocuments(t *testing.T) {
	f := newFixture(t)

	resp, err := f.assistant.Ask(context.Background(), Request{Message: "hello"})

	require.NoError(t, err)
	assert.Equal(t, NoDocumentsAnswer, resp.Answer)
	assert.Empty(t, resp.TopChunks)
	assert.Equal(t, OutcomeNoDocuments, resp.Meta.Outcome)
	assert.Equal(t, "default", resp.Meta.Collection)
	assert.Equal(t, 0, f.completer.Calls())

	// the fallback turn is still remembered
	history, err := f.memory.History(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, []memory.Message{
		{Role: memory.RoleUser, Text: "hello"},
		{Role: memory.RoleAssistant, Text: NoDocumentsAnswer},
	}, history)
}

func TestAsk_TwoPageDocument(t *testing.T) {
	f := newFixture(t)
	ingested := f.ingest(t, policyDoc, "")
	ctx := context.Background()

	resp, err := f.assistant.Ask(ctx, Request{Message: "What is the return policy?", SessionID: "s1"})

	require.NoError(t, err)
	assert.Equal(t, "You have 30 days to return items.", resp.Answer)
	assert.Equal(t, OutcomeAnswered, resp.Meta.Outcome)
	assert.Equal(t, ingested.Generation, resp.Meta.Generation)
	assert.Equal(t, "default", resp.Meta.Collection)
	assert.Equal(t, 5, resp.Meta.K)
	assert.Greater(t, resp.Meta.MaxScore, float32(0.2))
	require.NotEmpty(t, resp.TopChunks)
	assert.Equal(t, "[Page 1] The return policy allows 30 days.", resp.TopChunks[0])
	assert.Len(t, resp.History, 2)

	system := f.completer.LastSystem()
	assert.True(t, strings.HasPrefix(system, answer.SystemPrompt))
	assert.Contains(t, system, "Context from documents:\n[Page 1] The return policy allows 30 days.")
	assert.Contains(t, system, "Previous messages:\nNo previous conversation.")

	resp, err = f.assistant.Ask(ctx, Request{Message: "How do I contact support?", SessionID: "s1", K: 1})

	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, resp.Meta.Outcome)
	assert.Equal(t, []string{"[Page 2] Contact support at help@example.com."}, resp.TopChunks)
	assert.Contains(t, f.completer.LastSystem(),
		"Previous messages:\nUser: What is the return policy?\nAssistant: You have 30 days to return items.")
	assert.NotContains(t, f.completer.LastSystem(), "[Page 1]")
	assert.Len(t, resp.History, 4)
}

func TestAsk_LowConfidence(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, policyDoc, "")

	resp, err := f.assistant.Ask(context.Background(), Request{Message: "What is your favorite color?"})

	require.NoError(t, err)
	assert.Equal(t, LowConfidenceAnswer, resp.Answer)
	assert.Equal(t, OutcomeLowConfidence, resp.Meta.Outcome)
	assert.Empty(t, resp.TopChunks)
	assert.Less(t, resp.Meta.MaxScore, float32(0.2))
	assert.Equal(t, 0, f.completer.Calls())
	assert.Len(t, resp.History, 2)
}

func TestAsk_SummaryInPrompt(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, policyDoc, "")
	ctx := context.Background()
	require.NoError(t, f.memory.SetSummary(ctx, "s1", "Customer asked about refunds."))

	_, err := f.assistant.Ask(ctx, Request{Message: "What is the return policy?", SessionID: "s1"})

	require.NoError(t, err)
	assert.Contains(t, f.completer.LastSystem(), "\n\nConversation summary: Customer asked about refunds.\n\nPrevious messages:")
}

func TestAsk_CompletionFailure(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, policyDoc, "")
	f.completer.Err = errors.New("upstream 500")

	_, err := f.assistant.Ask(context.Background(), Request{Message: "What is the return policy?"})

	assert.ErrorIs(t, err, rag.ErrCompletion)
	history, herr := f.memory.History(context.Background(), "default")
	require.NoError(t, herr)
	assert.Empty(t, history)
}

func TestAsk_InvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.assistant.Ask(context.Background(), Request{Message: "  "})
	assert.ErrorIs(t, err, rag.ErrInvalidInput)

	_, err = f.assistant.Ask(context.Background(), Request{Message: "hi", CollectionID: "no/slashes"})
	assert.ErrorIs(t, err, rag.ErrInvalidInput)
}

func TestAsk_ExplicitCollection(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, policyDoc, "policies")
	f.ingest(t, "Shipping takes five business days.", "shipping")

	resp, err := f.assistant.Ask(context.Background(), Request{Message: "What is the return policy?", CollectionID: "policies"})

	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, resp.Meta.Outcome)
	assert.Equal(t, "policies", resp.Meta.Collection)

	// the active collection is the last one ingested
	resp, err = f.assistant.Ask(context.Background(), Request{Message: "What is the return policy?"})
	require.NoError(t, err)
	assert.Equal(t, "shipping", resp.Meta.Collection)
	assert.Equal(t, OutcomeLowConfidence, resp.Meta.Outcome)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, policyDoc, "")

	res, err := f.assistant.Search(context.Background(), "contact support", "", 1)

	require.NoError(t, err)
	assert.True(t, res.Confident)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, 2, res.Hits[0].Page)
	assert.Equal(t, res.MaxScore, res.Hits[0].Score)
	assert.Equal(t, 0, f.completer.Calls())

	_, err = f.assistant.Search(context.Background(), "", "", 1)
	assert.ErrorIs(t, err, rag.ErrInvalidInput)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	st, err := f.assistant.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.HasIndex)
	assert.Equal(t, "default", st.Active)
	assert.Empty(t, st.Collections)

	res := f.ingest(t, policyDoc, "policies")

	st, err = f.assistant.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.OK)
	assert.True(t, st.HasIndex)
	assert.Equal(t, "policies", st.Active)
	require.Contains(t, st.Collections, "policies")
	c := st.Collections["policies"]
	assert.True(t, c.Active)
	assert.True(t, c.Loaded)
	assert.Equal(t, res.Generation, c.Generation)
	assert.Equal(t, 2, c.Pages)
	assert.Equal(t, 2, c.Chunks)
}

// TestSearch_ConcurrentReingest re-ingests two alternating versions of a
// collection while searching it; every result must come from one version.
func TestSearch_ConcurrentReingest(t *testing.T) {
	f := newFixture(t)
	versions := []string{
		"alpha return policy one.\falpha contact support one.",
		"beta return policy two.\fbeta contact support two.",
	}
	f.ingest(t, versions[0], "")

	ctx := context.Background()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i := 1; i <= 20; i++ {
			if _, err := f.pipeline.Ingest(ctx, ingest.Request{
				Data: []byte(versions[i%2]), Filename: "policy.txt",
			}); err != nil {
				return err
			}
		}
		return nil
	})
	for w := 0; w < 4; w++ {
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				res, err := f.assistant.Search(ctx, "return policy", "", 5)
				if err != nil {
					return err
				}
				if len(res.Hits) != 2 {
					return fmt.Errorf("got %d hits", len(res.Hits))
				}
				first := strings.Fields(res.Hits[0].Text)[2]
				for _, h := range res.Hits[1:] {
					if word := strings.Fields(h.Text)[2]; word != first {
						return fmt.Errorf("mixed generations: %q and %q", first, word)
					}
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
