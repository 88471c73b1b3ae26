package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genai-pages/backend/internal/analysis"
	"github.com/genai-pages/backend/internal/chat"
	"github.com/genai-pages/backend/internal/conversation"
	"github.com/genai-pages/backend/internal/extraction"
	"github.com/genai-pages/backend/internal/llm"
	"github.com/genai-pages/backend/internal/storage/sqlite"
	"github.com/genai-pages/backend/pkg/config"
)

type stubLLM struct {
	mu      sync.Mutex
	chatErr error
	// hang, when set, makes Chat wait for cancellation and report it.
	hang chan error
}

func (s *stubLLM) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.mu.Lock()
	chatErr, hang := s.chatErr, s.hang
	s.mu.Unlock()

	if hang != nil {
		<-ctx.Done()
		hang <- ctx.Err()
		return nil, ctx.Err()
	}
	if chatErr != nil {
		return nil, chatErr
	}
	return &llm.ChatResponse{Content: "reply to " + req.Messages[len(req.Messages)-1].Content}, nil
}

func (s *stubLLM) Describe(_ context.Context, req llm.VisionRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: "looks fine", Model: "vision-stub"}, nil
}

func (s *stubLLM) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatErr = err
}

func newTestApp(t *testing.T) (*fiber.App, *stubLLM) {
	t.Helper()
	return newTestAppWith(t, nil)
}

func newTestAppWith(t *testing.T, tune func(*config.ServerConfig)) (*fiber.App, *stubLLM) {
	t.Helper()

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })

	stub := &stubLLM{}
	cache := extraction.NewCache(db)
	engine := chat.NewEngine(stub, cache, db, conversation.DefaultConfig())

	cfg := config.ServerConfig{
		BodyLimit:          10 * 1024 * 1024,
		TurnsPerMinute:     1000,
		MaxDocumentsPerReq: 5,
		IsDevelopment:      true,
	}
	if tune != nil {
		tune(&cfg)
	}

	app, limiter := NewApp(cfg, Deps{
		Engine:   engine,
		Cache:    cache,
		Analyzer: analysis.NewAnalyzer(stub, analysis.Config{}),
		Store:    db,
		Version:  "test",
	})
	t.Cleanup(limiter.Stop)
	return app, stub
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return send(t, app, req)
}

func send(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

type part struct {
	field, name string
	content     []byte
}

func multipartRequest(t *testing.T, path string, fields map[string]string, parts ...part) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, p := range parts {
		fw, err := w.CreateFormFile(p.field, p.name)
		require.NoError(t, err)
		_, err = fw.Write(p.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func createSession(t *testing.T, app *fiber.App, body string) string {
	t.Helper()

	status, out := doJSON(t, app, "POST", "/api/v1/sessions", body)
	require.Equal(t, fiber.StatusCreated, status, out)
	return out["id"].(string)
}

func TestPersonaChatFlow(t *testing.T) {
	app, _ := newTestApp(t)
	id := createSession(t, app, `{"mode":"chat","persona":"teacher"}`)

	status, out := doJSON(t, app, "POST", "/api/v1/sessions/"+id+"/turns", `{"message":"What is X?"}`)
	require.Equal(t, fiber.StatusOK, status, out)
	assert.Equal(t, "reply to What is X?", out["reply"])
	assert.Len(t, out["history"], 2)

	status, out = doJSON(t, app, "GET", "/api/v1/sessions/"+id+"/turns", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, out["turns"], 1)

	status, out = doJSON(t, app, "PUT", "/api/v1/sessions/"+id+"/persona", `{"persona":"doctor"}`)
	require.Equal(t, fiber.StatusOK, status, out)
	assert.Equal(t, "doctor", out["persona"])
	assert.Empty(t, out["history"])

	status, _ = doJSON(t, app, "DELETE", "/api/v1/sessions/"+id, "")
	assert.Equal(t, fiber.StatusNoContent, status)
	status, out = doJSON(t, app, "GET", "/api/v1/sessions/"+id, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "not_found", out["error_kind"])
}

func TestRequestValidation(t *testing.T) {
	app, _ := newTestApp(t)

	status, out := doJSON(t, app, "POST", "/api/v1/sessions", `{"persona":"pirate"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", out["error_kind"])

	status, _ = doJSON(t, app, "POST", "/api/v1/sessions", `{"mode":"voice"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	id := createSession(t, app, "")
	status, out = doJSON(t, app, "POST", "/api/v1/sessions/"+id+"/turns", `{"message":"  "}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, map[string]any{"message": "is required"}, out["fields"])
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		kind   error
		status int
		label  string
	}{
		{llm.ErrAuthenticationFailed, fiber.StatusBadGateway, "authentication"},
		{llm.ErrQuotaExceeded, fiber.StatusTooManyRequests, "quota"},
		{llm.ErrServiceUnavailable, fiber.StatusServiceUnavailable, "unavailable"},
		{llm.ErrInvalidRequest, fiber.StatusBadRequest, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			app, stub := newTestApp(t)
			id := createSession(t, app, `{"persona":"lawyer"}`)
			stub.fail(&llm.ServiceError{Kind: tt.kind, Provider: "stub", Err: errors.New("boom")})

			status, out := doJSON(t, app, "POST", "/api/v1/sessions/"+id+"/turns", `{"message":"hello"}`)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.label, out["error_kind"])

			_, snap := doJSON(t, app, "GET", "/api/v1/sessions/"+id, "")
			assert.Empty(t, snap["history"], "failed turn leaves history untouched")
		})
	}
}

func TestDocumentFlow(t *testing.T) {
	app, _ := newTestApp(t)
	id := createSession(t, app, `{"mode":"documents"}`)

	status, out := doJSON(t, app, "POST", "/api/v1/sessions/"+id+"/turns", `{"message":"summarize"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, conversation.NoContentReply, out["reply"])
	assert.Equal(t, false, out["answered"])

	req := multipartRequest(t, "/api/v1/sessions/"+id+"/documents", nil,
		part{"files", "notes.txt", []byte("The budget is 40 units.")},
		part{"files", "tool.exe", []byte("MZ")},
	)
	status, out = send(t, app, req)
	require.Equal(t, fiber.StatusOK, status, out)
	assert.Len(t, out["documents"], 1)
	require.Len(t, out["failed"], 1)
	failed := out["failed"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool.exe", failed["name"])
	assert.Equal(t, "invalid_request", failed["error_kind"])

	status, out = doJSON(t, app, "POST", "/api/v1/sessions/"+id+"/turns", `{"message":"What is the budget?"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, out["grounded"])

	status, out = doJSON(t, app, "GET", "/api/v1/sessions/"+id+"/stats", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, out["documents"])
	assert.EqualValues(t, 1, out["questions"])

	status, _ = doJSON(t, app, "DELETE", "/api/v1/sessions/"+id+"/documents/notes.txt", "")
	assert.Equal(t, fiber.StatusNoContent, status)
	status, _ = doJSON(t, app, "DELETE", "/api/v1/sessions/"+id+"/documents/notes.txt", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = doJSON(t, app, "DELETE", "/api/v1/cache", "")
	assert.Equal(t, fiber.StatusNoContent, status)
}

func TestDocumentUpload_AllFailed(t *testing.T) {
	app, _ := newTestApp(t)
	id := createSession(t, app, `{"mode":"documents"}`)

	req := multipartRequest(t, "/api/v1/sessions/"+id+"/documents", nil, part{"files", "blank.txt", []byte("  \n ")})
	status, out := send(t, app, req)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "extraction_failed", out["error_kind"])

	chatID := createSession(t, app, `{"mode":"chat"}`)
	req = multipartRequest(t, "/api/v1/sessions/"+chatID+"/documents", nil, part{"files", "a.txt", []byte("x")})
	status, _ = send(t, app, req)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestAnalysis(t *testing.T) {
	app, _ := newTestApp(t)

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 2, 2))))

	req := multipartRequest(t, "/api/v1/analyses", map[string]string{"kind": "skin"}, part{"image", "mole.png", img.Bytes()})
	status, out := send(t, app, req)
	require.Equal(t, fiber.StatusOK, status, out)
	assert.Equal(t, "looks fine", out["analysis"])
	assert.Equal(t, "skin", out["kind"])

	req = multipartRequest(t, "/api/v1/analyses", map[string]string{"kind": "astrology"}, part{"image", "a.png", img.Bytes()})
	status, out = send(t, app, req)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", out["error_kind"])

	req = multipartRequest(t, "/api/v1/analyses", map[string]string{"kind": "xray"}, part{"image", "a.txt", []byte("plain text")})
	status, _ = send(t, app, req)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t)

	status, out := doJSON(t, app, "GET", "/health", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "test", out["version"])

	status, out = doJSON(t, app, "GET", "/ready", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ready", out["status"])

	status, out = doJSON(t, app, "GET", "/api/v1/personas", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Len(t, out["personas"], len(conversation.Personas()))
}

func TestDocumentFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/handbook" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>Handbook</title></head><body><p>Leave is 20 days.</p></body></html>"))
	}))
	defer srv.Close()

	app, _ := newTestApp(t)
	id := createSession(t, app, `{"mode":"documents"}`)

	status, out := doJSON(t, app, "POST", "/api/v1/sessions/"+id+"/documents/url", `{"url":"`+srv.URL+`/handbook"}`)
	require.Equal(t, fiber.StatusOK, status, out)
	assert.Equal(t, "handbook.html", out["name"])

	status, out = doJSON(t, app, "POST", "/api/v1/sessions/"+id+"/documents/url", `{"url":"`+srv.URL+`/gone"}`)
	assert.Equal(t, fiber.StatusBadGateway, status)
	assert.Equal(t, "fetch_failed", out["error_kind"])

	status, _ = doJSON(t, app, "POST", "/api/v1/sessions/"+id+"/documents/url", `{"url":"not a url"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
