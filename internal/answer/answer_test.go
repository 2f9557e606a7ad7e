package answer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseAnswer_Structured(t *testing.T) {
	ans, sources, err := parseAnswer(`{"answer":"Spray neem oil.","sources":"state_agri_dept"}`)
	if err != nil {
		t.Fatalf("parseAnswer: %v", err)
	}
	if ans != "Spray neem oil." {
		t.Errorf("answer = %q", ans)
	}
	if sources == nil || *sources != "state_agri_dept" {
		t.Errorf("sources = %v, want state_agri_dept", sources)
	}
}

func TestParseAnswer_EmptySources(t *testing.T) {
	ans, sources, err := parseAnswer(`{"answer":"Irrigate in the evening.","sources":""}`)
	if err != nil {
		t.Fatalf("parseAnswer: %v", err)
	}
	if ans != "Irrigate in the evening." {
		t.Errorf("answer = %q", ans)
	}
	if sources != nil {
		t.Errorf("sources = %v, want nil", sources)
	}
}

func TestParseAnswer_PlainText(t *testing.T) {
	ans, sources, err := parseAnswer("Just spray neem oil.")
	if err != nil {
		t.Fatalf("parseAnswer: %v", err)
	}
	if ans != "Just spray neem oil." {
		t.Errorf("answer = %q", ans)
	}
	if sources != nil {
		t.Errorf("sources = %v, want nil", sources)
	}
}

func TestParseAnswer_Empty(t *testing.T) {
	if _, _, err := parseAnswer("   "); err == nil {
		t.Error("expected error for empty content")
	}
}

func TestOllamaAnswerer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "phi3.5" {
			t.Errorf("model = %q, want phi3.5", req.Model)
		}
		if req.Format == nil {
			t.Error("expected structured format schema")
		}
		if len(req.Messages) != 2 || req.Messages[1].Content != "wheat has pests" {
			t.Errorf("messages = %+v", req.Messages)
		}
		if !strings.Contains(req.Messages[0].Content, "wheat") {
			t.Errorf("system prompt missing crop: %q", req.Messages[0].Content)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Message: Message{Role: "assistant", Content: `{"answer":"Use neem oil.","sources":"kvk"}`},
		})
	}))
	defer srv.Close()

	a := NewOllamaAnswerer(srv.URL, "phi3.5")
	ans, sources, err := a.Answer(context.Background(), "wheat has pests", "wheat", "hi")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if ans != "Use neem oil." {
		t.Errorf("answer = %q", ans)
	}
	if sources == nil || *sources != "kvk" {
		t.Errorf("sources = %v, want kvk", sources)
	}
}

func TestOllamaAnswerer_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewOllamaAnswerer(srv.URL, "phi3.5")
	if _, _, err := a.Answer(context.Background(), "q", "wheat", "hi"); err == nil {
		t.Error("expected error on upstream failure")
	}
}

func TestOpenRouterAnswerer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"answer\":\"Rotate crops.\",\"sources\":\"\"}"}}]}`))
	}))
	defer srv.Close()

	a := NewOpenRouterAnswererWithBaseURL("sk-test", "test-model", srv.URL)
	ans, sources, err := a.Answer(context.Background(), "q", "rice", "en")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if ans != "Rotate crops." {
		t.Errorf("answer = %q", ans)
	}
	if sources != nil {
		t.Errorf("sources = %v, want nil", sources)
	}
}

func TestOpenRouterAnswerer_RetriesRateLimit(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	a := NewOpenRouterAnswererWithBaseURL("sk-test", "test-model", srv.URL)
	ans, _, err := a.Answer(context.Background(), "q", "wheat", "hi")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if ans != "ok" {
		t.Errorf("answer = %q, want ok", ans)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestOpenRouterAnswerer_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	a := NewOpenRouterAnswererWithBaseURL("sk-test", "test-model", srv.URL)
	if _, _, err := a.Answer(context.Background(), "q", "wheat", "hi"); err == nil {
		t.Error("expected error for empty choices")
	}
}
