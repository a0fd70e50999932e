package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/kbchat-go/internal/chat"
)

// fakeAnswerer implements the answerer interface for tests.
type fakeAnswerer struct {
	// result is returned on success.
	result *chat.Result
	// err is returned as the error value.
	err error
	// gotInput and gotHistory capture the last call's arguments.
	gotInput   string
	gotHistory []chat.Turn
}

func (f *fakeAnswerer) Answer(_ context.Context, input string, history []chat.Turn) (*chat.Result, error) {
	f.gotInput = input
	f.gotHistory = history
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeReadier implements the readier interface for tests.
type fakeReadier struct {
	err   error
	ready bool
}

func (f *fakeReadier) EnsureReady(context.Context) error { return f.err }
func (f *fakeReadier) Ready() bool                       { return f.ready }

// newChatTestServer builds a *Server wired with the given fakes, backed by a
// fresh metrics registry so tests stay hermetic.
func newChatTestServer(a answerer, e readier, env string) *Server {
	return &Server{
		pipeline: a,
		engine:   e,
		cfg:      &Config{Environment: env},
		log:      slog.Default(),
		metrics:  newServerMetrics(prometheus.NewRegistry()),
	}
}

func TestHandleChat_MissingInput(t *testing.T) {
	t.Parallel()

	a := &fakeAnswerer{result: &chat.Result{Answer: "never"}}
	s := newChatTestServer(a, &fakeReadier{}, "")
	req := httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"chatHistory":[]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if a.gotInput != "" {
		t.Error("pipeline invoked for a request with no input")
	}
}

func TestHandleChat_BlankInput(t *testing.T) {
	t.Parallel()

	a := &fakeAnswerer{result: &chat.Result{Answer: "never"}}
	s := newChatTestServer(a, &fakeReadier{}, "")
	req := httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"input":"   \n"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Error != "invalid_request" {
		t.Errorf("error = %q, want invalid_request", resp.Error)
	}
}

func TestHandleChat_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(&fakeAnswerer{}, &fakeReadier{}, "")
	req := httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`not-json`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleChat_Success(t *testing.T) {
	t.Parallel()

	a := &fakeAnswerer{result: &chat.Result{
		Answer: "Milvus is a vector database.",
		Context: []chat.Passage{
			{Content: "Milvus is a vector database.", Title: "Milvus", ID: 1, DocumentID: "d1"},
		},
	}}
	s := newChatTestServer(a, &fakeReadier{}, "")

	req := httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"input":"What is Milvus?","chatHistory":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp chat.Result
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "Milvus is a vector database." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.Context) != 1 || resp.Context[0].DocumentID != "d1" {
		t.Errorf("context = %+v", resp.Context)
	}
	if a.gotInput != "What is Milvus?" {
		t.Errorf("pipeline input = %q", a.gotInput)
	}
	if len(a.gotHistory) != 2 || a.gotHistory[0].Role != chat.RoleUser {
		t.Errorf("pipeline history = %+v", a.gotHistory)
	}
}

func TestHandleChat_PipelineErrorDevelopment(t *testing.T) {
	t.Parallel()

	a := &fakeAnswerer{err: fmt.Errorf("embedding backend unavailable")}
	s := newChatTestServer(a, &fakeReadier{}, "development")

	req := httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"input":"question"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Error != "Internal server error" {
		t.Errorf("error = %q", resp.Error)
	}
	if !strings.Contains(resp.Message, "embedding backend unavailable") {
		t.Errorf("expected error detail outside production, got %q", resp.Message)
	}
}

func TestHandleChat_PipelineErrorProductionWithholdsDetail(t *testing.T) {
	t.Parallel()

	a := &fakeAnswerer{err: fmt.Errorf("qdrant at 10.0.0.5:6334 refused connection")}
	s := newChatTestServer(a, &fakeReadier{}, "production")

	req := httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"input":"question"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "10.0.0.5") {
		t.Errorf("internal detail leaked in production response: %s", w.Body.String())
	}
}
