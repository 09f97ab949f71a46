// Package ingest turns an uploaded document into a searchable collection
// snapshot: store, extract, chunk, embed, index, persist, swap.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/mike-a-ellis/docqa/internal/chunker"
	"github.com/mike-a-ellis/docqa/internal/collection"
	"github.com/mike-a-ellis/docqa/internal/extract"
	"github.com/mike-a-ellis/docqa/internal/index"
	"github.com/mike-a-ellis/docqa/internal/metrics"
	"github.com/mike-a-ellis/docqa/internal/ocr"
	"github.com/mike-a-ellis/docqa/internal/rag"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

// Trace step names.
const (
	StepReceivedFile    = "received_file"
	StepExtracted       = "extracted"
	StepChunked         = "chunked"
	StepEmbeddedIndexed = "embedded_indexed"
)

// tesseract language codes, optionally joined with '+'
var langRe = regexp.MustCompile(`^[A-Za-z_]+(\+[A-Za-z_]+)*$`)

// Extractor produces page-tagged text from raw document bytes.
type Extractor interface {
	Extract(ctx context.Context, data []byte, filename, lang string) (*extract.Result, error)
}

// Chunker splits page-tagged text into chunks.
type Chunker interface {
	Chunk(text string) []chunker.Chunk
}

// Embedder embeds chunk texts into unit vectors, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Request is one document to ingest.
type Request struct {
	Data         []byte
	Filename     string
	ContentType  string
	Lang         string // OCR language, "eng" if empty
	CollectionID string // "default" if empty
}

// Step is one timed stage of an ingestion.
type Step struct {
	Step   string  `json:"step"`
	Ms     float64 `json:"ms"`
	Pages  *int    `json:"pages,omitempty"`
	Chunks *int    `json:"chunks,omitempty"`
}

// Result describes an ingestion. On failure it carries the steps completed
// before the error.
type Result struct {
	OK           bool    `json:"ok"`
	RequestID    string  `json:"request_id"`
	Filename     string  `json:"filename"`
	Pages        int     `json:"pages"`
	NumChunks    int     `json:"num_chunks"`
	CollectionID string  `json:"collection_id"`
	Generation   string  `json:"generation,omitempty"`
	Steps        []Step  `json:"steps"`
	TotalMs      float64 `json:"total_ms"`
	Error        string  `json:"error,omitempty"`
}

// Pipeline orchestrates ingestion from upload to an active collection.
type Pipeline struct {
	extractor Extractor
	chunker   Chunker
	embedder  Embedder
	snapshots storage.SnapshotStore
	uploads   storage.UploadStore
	registry  *collection.Registry
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewPipeline creates a new ingestion pipeline with the given components.
// snapshots, uploads and m may be nil.
func NewPipeline(
	extractor Extractor,
	chunker Chunker,
	embedder Embedder,
	snapshots storage.SnapshotStore,
	uploads storage.UploadStore,
	registry *collection.Registry,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		snapshots: snapshots,
		uploads:   uploads,
		registry:  registry,
		metrics:   m,
		logger:    logger,
	}
}

// Ingest builds a new generation of the request's collection and makes it
// active. Ingestions of one collection are serialized; on any failure the
// previous generation stays in service and the stored upload is removed.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	if req.CollectionID == "" {
		req.CollectionID = storage.DefaultCollectionID
	}
	if req.Lang == "" {
		req.Lang = ocr.DefaultLanguage
	}

	res = &Result{
		RequestID:    uuid.New().String(),
		Filename:     req.Filename,
		CollectionID: req.CollectionID,
		Steps:        []Step{},
	}
	logger := p.logger.With("request_id", res.RequestID, "collection", req.CollectionID, "filename", req.Filename)

	defer func() {
		res.TotalMs = millis(time.Since(start))
		if err != nil {
			res.OK = false
			res.Error = err.Error()
			p.metrics.IngestDone("error")
			logger.Warn("ingestion failed", "stage", rag.StageOf(err), "error", err)
			return
		}
		res.OK = true
		p.metrics.IngestDone("ok")
		logger.Info("ingestion complete", "pages", res.Pages, "chunks", res.NumChunks,
			"generation", res.Generation, "total_ms", res.TotalMs)
	}()

	if err := validate(req); err != nil {
		return res, err
	}

	unlock := p.registry.LockIngest(req.CollectionID)
	defer unlock()

	generation := uuid.New().String()
	key := storage.UploadKey(req.CollectionID, generation, req.Filename)

	// 1. Store the upload
	t := time.Now()
	if p.uploads != nil {
		if err := p.uploads.Put(ctx, key, req.Data, req.ContentType); err != nil {
			return res, rag.NewError(rag.ErrIndexUnavailable, StepReceivedFile, fmt.Errorf("store upload: %w", err))
		}
		defer func() {
			if err != nil {
				if derr := p.uploads.Delete(context.WithoutCancel(ctx), key); derr != nil {
					logger.Warn("failed to remove upload", "key", key, "error", derr)
				}
			}
		}()
	}
	p.step(res, StepReceivedFile, t, nil, nil)

	// 2. Extract text
	t = time.Now()
	extracted, err := p.extractor.Extract(ctx, req.Data, req.Filename, req.Lang)
	if err != nil {
		return res, err
	}
	res.Pages = extracted.Pages
	p.metrics.OCRPages(extracted.OCRPages)
	p.step(res, StepExtracted, t, &extracted.Pages, nil)
	logger.Debug("extracted", "pages", extracted.Pages, "ocr_pages", extracted.OCRPages)

	// 3. Chunk
	t = time.Now()
	chunks := p.chunker.Chunk(extracted.Text)
	n := len(chunks)
	p.step(res, StepChunked, t, nil, &n)
	if n == 0 {
		return res, rag.Errorf(rag.ErrExtraction, "chunk", "no text found in %q", req.Filename)
	}

	// 4. Embed, index, persist
	t = time.Now()
	texts := make([]string, n)
	for i, c := range chunks {
		texts[i] = c.Text()
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return res, err
	}
	idx, err := index.Build(vectors)
	if err != nil {
		return res, rag.NewError(rag.ErrEmbedding, "index", err)
	}

	snap := &storage.Snapshot{
		Index:  idx,
		Chunks: chunks,
		Provenance: storage.Provenance{
			CollectionID: req.CollectionID,
			Generation:   generation,
			Filename:     req.Filename,
			DocumentKey:  key,
			Pages:        extracted.Pages,
			Chunks:       n,
			IngestedAt:   time.Now().UTC(),
		},
	}
	if p.snapshots != nil {
		if err := p.snapshots.Save(ctx, snap); err != nil {
			return res, rag.NewError(rag.ErrIndexUnavailable, "persist", err)
		}
	}
	p.step(res, StepEmbeddedIndexed, t, nil, &n)

	// 5. Swap in and activate
	previous := p.registry.Current(req.CollectionID)
	p.registry.Swap(snap)
	if previous != nil && p.uploads != nil && previous.Provenance.DocumentKey != "" {
		if err := p.uploads.Delete(ctx, previous.Provenance.DocumentKey); err != nil {
			logger.Warn("failed to remove previous upload", "key", previous.Provenance.DocumentKey, "error", err)
		}
	}

	res.NumChunks = n
	res.Generation = generation
	return res, nil
}

func validate(req Request) error {
	if len(req.Data) == 0 {
		return rag.Errorf(rag.ErrInvalidInput, StepReceivedFile, "no file uploaded")
	}
	if !storage.ValidCollectionID(req.CollectionID) {
		return rag.Errorf(rag.ErrInvalidInput, StepReceivedFile, "invalid collection id %q", req.CollectionID)
	}
	if !langRe.MatchString(req.Lang) {
		return rag.Errorf(rag.ErrInvalidInput, StepReceivedFile, "invalid OCR language %q", req.Lang)
	}
	return nil
}

func (p *Pipeline) step(res *Result, name string, start time.Time, pages, chunks *int) {
	d := time.Since(start)
	p.metrics.IngestStage(name, d)
	res.Steps = append(res.Steps, Step{Step: name, Ms: millis(d), Pages: pages, Chunks: chunks})
}

// millis rounds a duration to hundredths of a millisecond.
func millis(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/10) / 100
}
