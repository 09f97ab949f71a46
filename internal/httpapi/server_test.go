package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/docqa/internal/assistant"
	"github.com/mike-a-ellis/docqa/internal/ingest"
	"github.com/mike-a-ellis/docqa/internal/rag"
)

type fakeAssistant struct {
	got  assistant.Request
	resp *assistant.Response
	err  error
}

func (f *fakeAssistant) Ask(ctx context.Context, req assistant.Request) (*assistant.Response, error) {
	f.got = req
	return f.resp, f.err
}

func (f *fakeAssistant) Status(ctx context.Context) (*assistant.Status, error) {
	return &assistant.Status{OK: true, Active: "default"}, nil
}

type fakeIngester struct {
	got ingest.Request
	err error
}

func (f *fakeIngester) Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error) {
	f.got = req
	res := &ingest.Result{OK: f.err == nil, Filename: req.Filename, CollectionID: req.CollectionID, Steps: []ingest.Step{}}
	if f.err != nil {
		res.Error = f.err.Error()
	}
	return res, f.err
}

type failingHealth struct{}

func (failingHealth) Health(ctx context.Context) error { return errors.New("connection refused") }

func newTestHandler(opts Options) (http.Handler, *fakeAssistant, *fakeIngester) {
	a := &fakeAssistant{resp: &assistant.Response{
		Answer:    "30 days.",
		TopChunks: []string{"[Page 1] The return policy allows 30 days."},
		Meta:      assistant.Meta{K: 5, Outcome: assistant.OutcomeAnswered},
	}}
	in := &fakeIngester{}
	return NewHandler(a, in, opts, nil), a, in
}

func do(h http.Handler, method, path string, body *bytes.Buffer, header map[string]string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestHandler(Options{})
	rec := do(h, "GET", "/healthz", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)

	h, _, _ = newTestHandler(Options{Health: failingHealth{}})
	rec = do(h, "GET", "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"disconnected"`)
}

func TestChat(t *testing.T) {
	h, a, _ := newTestHandler(Options{})

	rec := do(h, "POST", "/chat", bytes.NewBufferString(`{"message":"What is the return policy?","session_id":"s1","k":3}`), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "What is the return policy?", a.got.Message)
	assert.Equal(t, "s1", a.got.SessionID)
	assert.Equal(t, 3, a.got.K)

	var resp assistant.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "30 days.", resp.Answer)
	assert.Equal(t, "answered", resp.Meta.Outcome)
}

func TestChat_BadRequests(t *testing.T) {
	h, _, _ := newTestHandler(Options{})

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"malformed", `{"message":`},
		{"missing message", `{"session_id":"s1"}`},
		{"bad collection", `{"message":"hi","collection_id":"a b"}`},
		{"k too large", `{"message":"hi","k":500}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, "POST", "/chat", bytes.NewBufferString(tt.body), nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.OK)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestChat_ErrorMapping(t *testing.T) {
	h, a, _ := newTestHandler(Options{})
	a.err = rag.Errorf(rag.ErrCompletion, "compose", "model unavailable")

	rec := do(h, "POST", "/chat", bytes.NewBufferString(`{"message":"hi"}`), nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stage":"compose"`)
}

func TestAPIKey(t *testing.T) {
	h, _, _ := newTestHandler(Options{APIKey: "secret"})
	body := func() *bytes.Buffer { return bytes.NewBufferString(`{"message":"hi"}`) }

	assert.Equal(t, http.StatusUnauthorized, do(h, "POST", "/chat", body(), nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, "POST", "/chat", body(), map[string]string{"X-API-Key": "wrong"}).Code)
	assert.Equal(t, http.StatusOK, do(h, "POST", "/chat", body(), map[string]string{"X-API-Key": "secret"}).Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, "GET", "/status", nil, nil).Code)
	assert.Equal(t, http.StatusOK, do(h, "GET", "/healthz", nil, nil).Code)
}

func multipartBody(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestIngest(t *testing.T) {
	h, _, in := newTestHandler(Options{})
	body, ct := multipartBody(t, nil, "policy.txt", "The return policy allows 30 days.")

	rec := do(h, "POST", "/ingest", body, map[string]string{"Content-Type": ct})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "eng", in.got.Lang)
	assert.Equal(t, "default", in.got.CollectionID)
	assert.Equal(t, "policy.txt", in.got.Filename)
	assert.Equal(t, "The return policy allows 30 days.", string(in.got.Data))
	assert.Contains(t, rec.Body.String(), `"ok":true`)
}

func TestIngest_Errors(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		h, _, _ := newTestHandler(Options{})
		body, ct := multipartBody(t, map[string]string{"lang": "eng"}, "", "")
		rec := do(h, "POST", "/ingest", body, map[string]string{"Content-Type": ct})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "no file uploaded")
	})

	t.Run("not multipart", func(t *testing.T) {
		h, _, _ := newTestHandler(Options{})
		rec := do(h, "POST", "/ingest", bytes.NewBufferString("x"), map[string]string{"Content-Type": "text/plain"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad collection", func(t *testing.T) {
		h, _, _ := newTestHandler(Options{})
		body, ct := multipartBody(t, map[string]string{"collection_id": "../etc"}, "a.txt", "x")
		rec := do(h, "POST", "/ingest", body, map[string]string{"Content-Type": ct})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too large", func(t *testing.T) {
		h, _, _ := newTestHandler(Options{MaxUploadBytes: 64})
		body, ct := multipartBody(t, nil, "a.txt", strings.Repeat("x", 1024))
		rec := do(h, "POST", "/ingest", body, map[string]string{"Content-Type": ct})
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("unsupported document", func(t *testing.T) {
		h, _, in := newTestHandler(Options{})
		in.err = rag.Errorf(rag.ErrDocumentFormat, "extract", "unsupported document")
		body, ct := multipartBody(t, nil, "a.zip", "PK")
		rec := do(h, "POST", "/ingest", body, map[string]string{"Content-Type": ct})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), `"ok":false`)
		assert.Contains(t, rec.Body.String(), "unsupported document")
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{rag.NewError(rag.ErrDocumentFormat, "extract", errors.New("x")), 422},
		{rag.NewError(rag.ErrExtraction, "extract", errors.New("x")), 422},
		{rag.NewError(rag.ErrEmbedding, "embed", errors.New("x")), 502},
		{rag.NewError(rag.ErrCompletion, "compose", errors.New("x")), 502},
		{rag.NewError(rag.ErrInvalidInput, "validate", errors.New("x")), 400},
		{rag.NewError(rag.ErrAuthentication, "auth", errors.New("x")), 401},
		{rag.NewError(rag.ErrIndexUnavailable, "persist", errors.New("x")), 503},
		{errors.New("boom"), 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestCORS(t *testing.T) {
	h, _, _ := newTestHandler(Options{CORSOrigins: []string{"http://localhost:5173"}})

	rec := do(h, "OPTIONS", "/chat", nil, map[string]string{
		"Origin":                        "http://localhost:5173",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")

	rec = do(h, "GET", "/healthz", nil, map[string]string{"Origin": "http://evil.example"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRoot(t *testing.T) {
	h, _, _ := newTestHandler(Options{Metrics: http.NotFoundHandler()})

	rec := do(h, "GET", "/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp rootResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"/healthz", "/status", "/ingest", "/chat", "/metrics"}, resp.Endpoints)

	rec = do(h, "GET", "/", nil, map[string]string{"Accept": "text/html"})
	assert.Contains(t, rec.Body.String(), "<title>docqa</title>")

	assert.Equal(t, http.StatusNotFound, do(h, "GET", "/nope", nil, nil).Code)
}
