package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emberhearth/ember/internal/affect"
	"github.com/emberhearth/ember/internal/agent"
	"github.com/emberhearth/ember/internal/events"
	"github.com/emberhearth/ember/internal/llm"
	"github.com/emberhearth/ember/internal/memory"
)

type fixedLLM struct {
	text string
}

func (f *fixedLLM) Generate(context.Context, string, llm.Request) (*llm.Response, error) {
	return &llm.Response{Text: f.text, Model: "test"}, nil
}

func (f *fixedLLM) GenerateStream(ctx context.Context, model string, req llm.Request, _ llm.StreamCallback) (*llm.Response, error) {
	return f.Generate(ctx, model, req)
}

func (f *fixedLLM) Ping(context.Context) error { return nil }

func newTestServer(t *testing.T) (*Server, *events.Bus) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := memory.Open(filepath.Join(dir, "memory.db"), 50, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	bus := events.New()
	ag := agent.New(agent.Options{
		Logger:   logger,
		Bus:      bus,
		Client:   &fixedLLM{text: "Hello yourself."},
		Model:    "test-model",
		Store:    store,
		Emotions: affect.NewEngine(filepath.Join(dir, "emotional_state.json"), nil, logger),
	})
	return NewServer("127.0.0.1", 0, ag, bus, logger), bus
}

func TestChatEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/chat", "application/json",
		strings.NewReader(`{"message": "hello there"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		Reply   string `json:"reply"`
		Emotion string `json:"emotion"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Reply != "Hello yourself." {
		t.Errorf("reply = %q", out.Reply)
	}
	if out.Emotion == "" {
		t.Error("emotion missing from response")
	}
}

func TestChatRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for name, body := range map[string]string{
		"invalid json":  `{"message": `,
		"empty message": `{"message": "  "}`,
	} {
		resp, err := http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, resp.StatusCode)
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status["processing"] != false {
		t.Errorf("processing = %v", status["processing"])
	}
	if _, ok := status["emotion"]; !ok {
		t.Error("status missing emotion")
	}
	if _, ok := status["build"]; !ok {
		t.Error("status missing build info")
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestEventStreamDeliversBusEvents(t *testing.T) {
	srv, bus := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// The subscription happens inside the handler; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	var got events.Event
	for time.Now().Before(deadline) {
		bus.Publish(events.Event{Source: events.SourceAgent, Kind: events.KindTurnStart})
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		if err := conn.ReadJSON(&got); err == nil {
			break
		}
	}
	if got.Kind != events.KindTurnStart {
		t.Fatalf("event = %+v, want turn_start", got)
	}
}
