// Package httpapi exposes ingestion, chat and status over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mike-a-ellis/docqa/internal/assistant"
	"github.com/mike-a-ellis/docqa/internal/ingest"
	"github.com/mike-a-ellis/docqa/internal/rag"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

const (
	// DefaultMaxUploadBytes caps multipart uploads.
	DefaultMaxUploadBytes = 50 << 20
	maxChatBytes          = 1 << 20
)

// Assistant answers chat messages and reports status.
type Assistant interface {
	Ask(ctx context.Context, req assistant.Request) (*assistant.Response, error)
	Status(ctx context.Context) (*assistant.Status, error)
}

// Ingester ingests one uploaded document.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// Options configures the handler. Metrics and MCP are mounted when non-nil.
type Options struct {
	APIKey         string
	CORSOrigins    []string
	MaxUploadBytes int64
	Health         HealthChecker
	Metrics        http.Handler
	MCP            http.Handler
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	SessionID    string `json:"session_id" validate:"omitempty,max=128"`
	Message      string `json:"message" validate:"required,max=8000"`
	CollectionID string `json:"collection_id" validate:"omitempty,collection_id"`
	K            int    `json:"k" validate:"omitempty,min=1,max=50"`
}

type ingestForm struct {
	Lang         string `validate:"required,max=64"`
	CollectionID string `validate:"required,collection_id"`
}

type server struct {
	assistant Assistant
	ingester  Ingester
	opts      Options
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewHandler builds the HTTP API.
func NewHandler(a Assistant, in Ingester, opts Options, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	s := &server{assistant: a, ingester: in, opts: opts, validate: newValidator(), logger: logger}

	routes := []string{"/healthz", "/status", "/ingest", "/chat"}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", NewHealthHandler(opts.Health))
	mux.Handle("GET /status", requireAPIKey(opts.APIKey, http.HandlerFunc(s.handleStatus)))
	mux.Handle("POST /ingest", requireAPIKey(opts.APIKey, http.HandlerFunc(s.handleIngest)))
	mux.Handle("POST /chat", requireAPIKey(opts.APIKey, http.HandlerFunc(s.handleChat)))
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
		routes = append(routes, "/metrics")
	}
	if opts.MCP != nil {
		mux.Handle("/mcp", requireAPIKey(opts.APIKey, opts.MCP))
		routes = append(routes, "/mcp")
	}
	mux.HandleFunc("GET /{$}", NewLandingHandler(routes))

	return logRequests(logger, cors(opts.CORSOrigins, mux))
}

func newValidator() *validator.Validate {
	v := validator.New()
	// only fails on a programming error: the tag name is constant
	_ = v.RegisterValidation("collection_id", func(fl validator.FieldLevel) bool {
		return storage.ValidCollectionID(fl.Field().String())
	})
	return v
}

func (s *server) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, len(verrs))
		for i, fe := range verrs {
			fields[i] = fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag())
		}
		return rag.Errorf(rag.ErrInvalidInput, "validate", "%s", strings.Join(fields, "; "))
	}
	return rag.NewError(rag.ErrInvalidInput, "validate", err)
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		writeError(w, rag.NewError(rag.ErrInvalidInput, "decode", err))
		return
	}
	if err := s.check(req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.assistant.Ask(r.Context(), assistant.Request{
		Message:      req.Message,
		SessionID:    req.SessionID,
		CollectionID: req.CollectionID,
		K:            req.K,
	})
	if err != nil {
		s.logger.Error("chat failed", "session", req.SessionID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxBytes *http.MaxBytesError
		if !errors.As(err, &maxBytes) {
			err = rag.NewError(rag.ErrInvalidInput, "received_file", err)
		}
		writeError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := ingestForm{Lang: r.FormValue("lang"), CollectionID: r.FormValue("collection_id")}
	if form.Lang == "" {
		form.Lang = "eng"
	}
	if form.CollectionID == "" {
		form.CollectionID = storage.DefaultCollectionID
	}
	if err := s.check(form); err != nil {
		writeError(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, rag.Errorf(rag.ErrInvalidInput, "received_file", "no file uploaded"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, rag.NewError(rag.ErrInvalidInput, "received_file", err))
		return
	}

	res, err := s.ingester.Ingest(r.Context(), ingest.Request{
		Data:         data,
		Filename:     header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Lang:         form.Lang,
		CollectionID: form.CollectionID,
	})
	switch {
	case err != nil && res == nil:
		writeError(w, err)
	case err != nil:
		writeJSON(w, StatusFor(err), res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.assistant.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
