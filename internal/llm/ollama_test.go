package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/inspectforge/ddrgen/internal/ddr"
)

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ollamaGenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Stream {
			t.Error("streaming should be disabled")
		}
		if req.System == "" || req.Prompt == "" {
			t.Error("system and prompt should be forwarded")
		}
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "generated text"})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3")
	got, err := c.Complete(context.Background(), ddr.CompletionRequest{System: "sys", Prompt: "p", MaxTokens: 200})
	if err != nil {
		t.Fatal(err)
	}
	if got != "generated text" {
		t.Errorf("got %q", got)
	}
}

func TestOllamaCompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3")
	if _, err := c.Complete(context.Background(), ddr.CompletionRequest{Prompt: "p"}); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestOllamaDefaults(t *testing.T) {
	c := NewOllamaClient("", "")
	if c.baseURL != "http://localhost:11434" || c.model != "llama3" {
		t.Errorf("defaults = %s / %s", c.baseURL, c.model)
	}
}
