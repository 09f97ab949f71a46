// Package app constructs every docqa component from the configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mike-a-ellis/docqa/internal/answer"
	"github.com/mike-a-ellis/docqa/internal/assistant"
	"github.com/mike-a-ellis/docqa/internal/chunker"
	"github.com/mike-a-ellis/docqa/internal/collection"
	"github.com/mike-a-ellis/docqa/internal/config"
	"github.com/mike-a-ellis/docqa/internal/embedding"
	"github.com/mike-a-ellis/docqa/internal/extract"
	"github.com/mike-a-ellis/docqa/internal/httpapi"
	"github.com/mike-a-ellis/docqa/internal/ingest"
	mcpserver "github.com/mike-a-ellis/docqa/internal/mcp"
	"github.com/mike-a-ellis/docqa/internal/memory"
	"github.com/mike-a-ellis/docqa/internal/metrics"
	"github.com/mike-a-ellis/docqa/internal/ocr"
	"github.com/mike-a-ellis/docqa/internal/retriever"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

// Version is reported by the MCP server.
const Version = "v0.1.0"

// App holds the wired components.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Registry  *collection.Registry
	Pipeline  *ingest.Pipeline
	Assistant *assistant.Assistant

	health  httpapi.HealthChecker
	closers []func() error
}

// New connects to the configured backends and builds the pipeline and
// assistant. Close releases the connections.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err := extract.SetUniPDFLicense(extract.License{
		MeteredKey:   cfg.UniDocLicenseKey,
		OfflineKey:   cfg.UniDocOfflineKey,
		CustomerName: cfg.UniDocCustomerName,
	}); err != nil {
		return nil, fmt.Errorf("unipdf license: %w", err)
	}
	if !extract.UniPDFLicensed() {
		logger.Warn("no unipdf license loaded, PDF ingestion will fail; set UNIDOC_LICENSE_API_KEY or UNIDOC_LICENSE_KEY")
	}

	// Snapshot and upload stores
	snapshots, err := a.snapshotStore(ctx)
	if err != nil {
		return nil, err
	}
	uploads, err := a.uploadStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Registry = collection.NewRegistry(snapshots, logger)
	a.restoreActive(ctx, snapshots)

	// Model clients
	embeddingClient, err := embedding.NewClient(embedding.ClientConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.EmbeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient, cfg.EmbedBatchSize)
	// Use the same OpenAI client from embeddings for completions
	completer := answer.NewOpenAICompleter(embeddingClient.Client(), cfg.LLMModel)

	// Ingestion
	var tokenizer chunker.Tokenizer
	tok, err := chunker.NewTiktokenTokenizer("")
	if err != nil {
		logger.Warn("tiktoken unavailable, counting words instead", "error", err)
		tokenizer = chunker.WordTokenizer{}
	} else {
		tokenizer = tok
	}
	extractor := extract.NewExtractor(extract.UniPDF{}, a.ocrEngine(), extract.Config{
		OCRThreshold:    cfg.OCRThreshold,
		OCRDPI:          cfg.OCRDPI,
		DefaultLanguage: cfg.OCRDefaultLang,
	}, logger)
	a.Pipeline = ingest.NewPipeline(
		extractor,
		chunker.NewChunker(tokenizer, cfg.ChunkMaxTokens),
		embedder,
		snapshots,
		uploads,
		a.Registry,
		a.Metrics,
		logger,
	)

	// Query
	mem, err := a.memoryStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Assistant = assistant.New(
		retriever.New(embedder, a.Registry, logger),
		answer.NewComposer(completer),
		mem,
		a.Registry,
		a.Metrics,
		assistant.Config{K: cfg.RetrievalK, ConfMin: float32(cfg.ConfMin)},
		logger,
	)

	return a, nil
}

func (a *App) snapshotStore(ctx context.Context) (storage.SnapshotStore, error) {
	cfg := a.Config
	switch cfg.VectorStore {
	case "qdrant":
		a.Logger.Info("connecting to Qdrant", "host", cfg.QdrantHost, "port", cfg.QdrantPort)
		store, err := storage.NewQdrantSnapshotStore(ctx, cfg.QdrantHost, cfg.QdrantPort)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		a.health = store
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		store, err := storage.NewFSSnapshotStore(cfg.IndexDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func (a *App) uploadStore(ctx context.Context) (storage.UploadStore, error) {
	cfg := a.Config
	switch cfg.UploadStore {
	case "minio":
		store, err := storage.NewMinIOUploadStore(ctx, storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MinIO: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewFSUploadStore(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func (a *App) memoryStore(ctx context.Context) (memory.Store, error) {
	if a.Config.RedisURL == "" {
		return memory.NewInMemory(), nil
	}
	store, err := memory.NewRedis(ctx, a.Config.RedisURL, a.Config.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

// restoreActive makes the most recently ingested stored collection active.
func (a *App) restoreActive(ctx context.Context, store storage.SnapshotStore) {
	stored, err := store.List(ctx)
	if err != nil {
		a.Logger.Warn("failed to list stored collections", "error", err)
		return
	}
	var latest *storage.Provenance
	for i := range stored {
		if latest == nil || stored[i].IngestedAt.After(latest.IngestedAt) {
			latest = &stored[i]
		}
	}
	if latest != nil {
		a.Registry.SetActive(latest.CollectionID)
		a.Logger.Info("restored active collection", "collection", latest.CollectionID, "generation", latest.Generation)
	}
}

// ocrEngine returns the tesseract adapter, or nil when the binary is missing.
func (a *App) ocrEngine() ocr.Engine {
	engine, err := ocr.NewTesseract(ocr.TesseractConfig{
		Command:  a.Config.TesseractCmd,
		TessData: a.Config.TessDataPrefix,
		DPI:      a.Config.OCRDPI,
	}, a.Logger)
	if err != nil {
		a.Logger.Warn("OCR disabled", "error", err)
		return nil
	}
	return engine
}

// MCPServer returns the MCP tool server backed by the assistant.
func (a *App) MCPServer() (*mcpserver.Server, error) {
	return mcpserver.NewServer(&mcpserver.Config{
		Assistant: a.Assistant,
		Version:   Version,
		Stateless: a.Config.MCPStateless,
	})
}

// HTTPHandler returns the full HTTP API including /mcp and /metrics.
func (a *App) HTTPHandler() (http.Handler, error) {
	server, err := a.MCPServer()
	if err != nil {
		return nil, err
	}
	return httpapi.NewHandler(a.Assistant, a.Pipeline, httpapi.Options{
		APIKey:         a.Config.RAGAPIKey,
		CORSOrigins:    a.Config.CORSOrigins,
		MaxUploadBytes: a.Config.MaxUploadBytes,
		Health:         a.health,
		Metrics:        a.Metrics.Handler(),
		MCP:            server.Handler(),
	}, a.Logger), nil
}

// Close releases backend connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
