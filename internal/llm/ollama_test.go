package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Stream {
			t.Error("non-streaming Generate should set stream=false")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("expected system+user messages, got %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Model:           req.Model,
			Message:         ollamaMessage{Role: "assistant", Content: "hello there"},
			Done:            true,
			PromptEvalCount: 12,
			EvalCount:       3,
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL)
	resp, err := c.Generate(context.Background(), "qwen3:8b", Request{
		Prompt: "hi",
		System: "be brief",
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if resp.Text != "hello there" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 3 {
		t.Errorf("tokens = %d/%d, want 12/3", resp.InputTokens, resp.OutputTokens)
	}
}

func TestOllamaGenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunks := []ollamaChatResponse{
			{Message: ollamaMessage{Content: "hel"}},
			{Message: ollamaMessage{Content: "lo"}},
			{Done: true, EvalCount: 2},
		}
		enc := json.NewEncoder(w)
		for _, chunk := range chunks {
			enc.Encode(chunk)
		}
	}))
	defer srv.Close()

	var tokens []string
	c := NewOllamaClient(srv.URL)
	resp, err := c.GenerateStream(context.Background(), "qwen3:8b", Request{Prompt: "hi"}, func(tok string) {
		tokens = append(tokens, tok)
	})
	if err != nil {
		t.Fatalf("GenerateStream() error: %v", err)
	}
	if resp.Text != "hello" {
		t.Errorf("Text = %q, want hello", resp.Text)
	}
	if strings.Join(tokens, "") != "hello" {
		t.Errorf("streamed tokens = %v", tokens)
	}
}

func TestOllamaGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL)
	if _, err := c.Generate(context.Background(), "nope", Request{Prompt: "hi"}); err == nil {
		t.Fatal("Generate() should surface non-200 responses as errors")
	}
}

func TestOllamaPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/version" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"version":"0.6.0"}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}

func TestOllamaVisionMessageEncoding(t *testing.T) {
	msgs := buildOllamaMessages(Request{
		Prompt: "what do you see",
		Images: [][]byte{{0x01, 0x02}},
	})
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if len(msgs[0].Images) != 1 || msgs[0].Images[0] != "AQI=" {
		t.Errorf("image not base64 encoded: %v", msgs[0].Images)
	}
}
