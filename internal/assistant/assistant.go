// Package assistant answers questions about ingested documents: it resolves
// the collection, retrieves context, applies the confidence gate, composes an
// answer and records the turn in the session memory.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/mike-a-ellis/docqa/internal/answer"
	"github.com/mike-a-ellis/docqa/internal/collection"
	"github.com/mike-a-ellis/docqa/internal/memory"
	"github.com/mike-a-ellis/docqa/internal/metrics"
	"github.com/mike-a-ellis/docqa/internal/rag"
	"github.com/mike-a-ellis/docqa/internal/retriever"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

// Fallback answers.
const (
	NoDocumentsAnswer   = "I don't have any documents loaded yet. Please upload a PDF first."
	LowConfidenceAnswer = "I couldn't find this in our knowledge base. Could you clarify or provide more details?"
)

// Query outcomes, reported in Meta and as metric labels.
const (
	OutcomeAnswered      = "answered"
	OutcomeNoDocuments   = "no_documents"
	OutcomeLowConfidence = "low_confidence"
	OutcomeError         = "error"
)

// Retriever finds the chunks closest to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query, collectionID string, k int) (*retriever.Result, error)
}

// Composer writes an answer from retrieved context.
type Composer interface {
	Compose(ctx context.Context, in answer.Input) (string, error)
}

// Collections reports the known collections.
type Collections interface {
	List(ctx context.Context) ([]collection.CollectionStatus, error)
	Active() string
}

// Config tunes retrieval. Zero values select the defaults.
type Config struct {
	K       int     // chunks retrieved per query
	ConfMin float32 // minimum top score for an answer
}

// Request is one chat message.
type Request struct {
	Message      string
	SessionID    string // "default" if empty
	CollectionID string // active collection if empty
	K            int    // chunks used as context, Config.K if zero
}

// Meta describes how an answer was produced.
type Meta struct {
	K          int     `json:"k"`
	Collection string  `json:"collection,omitempty"`
	Generation string  `json:"generation,omitempty"`
	MaxScore   float32 `json:"max_score"`
	Outcome    string  `json:"outcome"`
}

// Response is the reply to one chat message.
type Response struct {
	Answer    string           `json:"answer"`
	TopChunks []string         `json:"top_chunks"`
	Meta      Meta             `json:"meta"`
	History   []memory.Message `json:"history"`
}

// Assistant runs the query operation.
type Assistant struct {
	retriever   Retriever
	composer    Composer
	memory      memory.Store
	collections Collections
	metrics     *metrics.Metrics
	cfg         Config
	logger      *slog.Logger
}

// New creates an assistant. m may be nil.
func New(r Retriever, c Composer, mem memory.Store, collections Collections, m *metrics.Metrics, cfg Config, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.K <= 0 {
		cfg.K = retriever.DefaultK
	}
	if cfg.ConfMin <= 0 {
		cfg.ConfMin = retriever.DefaultConfMin
	}
	return &Assistant{
		retriever:   r,
		composer:    c,
		memory:      mem,
		collections: collections,
		metrics:     m,
		cfg:         cfg,
		logger:      logger,
	}
}

// Ask answers req.Message from the resolved collection. A missing collection
// and a failed confidence gate produce fallback answers, not errors; the turn
// is recorded in memory either way.
func (a *Assistant) Ask(ctx context.Context, req Request) (resp *Response, err error) {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return nil, rag.Errorf(rag.ErrInvalidInput, "ask", "message is empty")
	}
	if req.SessionID == "" {
		req.SessionID = memory.DefaultSessionID
	}
	if req.K <= 0 {
		req.K = a.cfg.K
	}
	logger := a.logger.With("session", req.SessionID)

	defer func() {
		if err != nil {
			a.metrics.QueryDone(OutcomeError)
			return
		}
		a.metrics.QueryDone(resp.Meta.Outcome)
	}()

	res, err := a.retriever.Retrieve(ctx, req.Message, req.CollectionID, max(req.K, a.cfg.K))
	if errors.Is(err, rag.ErrIndexUnavailable) {
		logger.Info("no documents for query", "collection", req.CollectionID, "error", err)
		meta := Meta{K: req.K, Collection: a.collectionID(req.CollectionID), Outcome: OutcomeNoDocuments}
		return a.fallback(ctx, req, NoDocumentsAnswer, meta), nil
	}
	if err != nil {
		return nil, err
	}

	a.metrics.TopScore(res.MaxScore())
	meta := Meta{
		K:          req.K,
		Collection: res.Collection,
		Generation: res.Generation,
		MaxScore:   res.MaxScore(),
	}

	if !res.Confident(a.cfg.ConfMin) {
		logger.Info("below confidence threshold", "collection", res.Collection, "max_score", res.MaxScore())
		meta.Outcome = OutcomeLowConfidence
		return a.fallback(ctx, req, LowConfidenceAnswer, meta), nil
	}

	chunks := res.Chunks[:min(req.K, len(res.Chunks))]
	in := answer.Input{Question: req.Message, Chunks: chunks}
	if in.Summary, err = a.memory.Summary(ctx, req.SessionID); err != nil {
		logger.Warn("failed to read summary", "error", err)
	}
	if in.History, err = a.memory.History(ctx, req.SessionID); err != nil {
		logger.Warn("failed to read history", "error", err)
	}

	text, err := a.composer.Compose(ctx, in)
	if err != nil {
		return nil, err
	}

	top := make([]string, len(chunks))
	for i, c := range chunks {
		top[i] = c.Text()
	}
	meta.Outcome = OutcomeAnswered
	resp = &Response{Answer: text, TopChunks: top, Meta: meta}
	resp.History = a.record(ctx, logger, req, text)

	logger.Info("answered", "collection", res.Collection, "generation", res.Generation,
		"max_score", res.MaxScore(), "chunks", len(chunks))
	return resp, nil
}

func (a *Assistant) fallback(ctx context.Context, req Request, text string, meta Meta) *Response {
	resp := &Response{Answer: text, TopChunks: []string{}, Meta: meta}
	resp.History = a.record(ctx, a.logger, req, text)
	return resp
}

// record stores the turn and returns the updated history. Memory failures
// are logged; the answer is still returned.
func (a *Assistant) record(ctx context.Context, logger *slog.Logger, req Request, reply string) []memory.Message {
	if err := a.memory.AddTurn(ctx, req.SessionID, req.Message, reply); err != nil {
		logger.Warn("failed to record turn", "error", err)
		return []memory.Message{}
	}
	history, err := a.memory.History(ctx, req.SessionID)
	if err != nil {
		logger.Warn("failed to read history", "error", err)
		return []memory.Message{}
	}
	return history
}

// collectionID returns id, or the collection an empty id resolves to.
func (a *Assistant) collectionID(id string) string {
	if id != "" {
		return id
	}
	if active := a.collections.Active(); active != "" {
		return active
	}
	return storage.DefaultCollectionID
}

// Hit is one search result.
type Hit struct {
	Page  int     `json:"page"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// SearchResult is the outcome of a retrieval-only query.
type SearchResult struct {
	Collection string  `json:"collection"`
	Generation string  `json:"generation"`
	MaxScore   float32 `json:"max_score"`
	Confident  bool    `json:"confident"`
	Hits       []Hit   `json:"hits"`
}

// Search returns the k best chunks for query without composing an answer
// or touching session memory.
func (a *Assistant) Search(ctx context.Context, query, collectionID string, k int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, rag.Errorf(rag.ErrInvalidInput, "search", "query is empty")
	}
	if k <= 0 {
		k = a.cfg.K
	}

	res, err := a.retriever.Retrieve(ctx, query, collectionID, k)
	if err != nil {
		return nil, err
	}

	out := &SearchResult{
		Collection: res.Collection,
		Generation: res.Generation,
		MaxScore:   res.MaxScore(),
		Confident:  res.Confident(a.cfg.ConfMin),
		Hits:       make([]Hit, len(res.Chunks)),
	}
	for i, c := range res.Chunks {
		out.Hits[i] = Hit{Page: c.Page, Text: c.Text(), Score: res.Scores[i]}
	}
	return out, nil
}

// Status is the service's view of its collections.
type Status struct {
	OK          bool                                   `json:"ok"`
	HasIndex    bool                                   `json:"has_index"`
	Collections map[string]collection.CollectionStatus `json:"collections"`
	Active      string                                 `json:"active"`
}

// Status lists every known collection and the active one.
func (a *Assistant) Status(ctx context.Context) (*Status, error) {
	list, err := a.collections.List(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{
		OK:          true,
		HasIndex:    len(list) > 0,
		Collections: make(map[string]collection.CollectionStatus, len(list)),
		Active:      a.collectionID(""),
	}
	for _, c := range list {
		st.Collections[c.CollectionID] = c
	}
	return st, nil
}
