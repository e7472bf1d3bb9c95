package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emberhearth/ember/internal/httpkit"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
)

// AnthropicClient is a client for the Anthropic Messages API. It serves
// as the frontier fallback when the local Ollama instance is down or a
// vision call needs a stronger model.
type AnthropicClient struct {
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string, logger *slog.Logger) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	// LLM responses can take significant time before sending headers
	// (thinking, long prompts). Use a custom transport with a generous
	// response header timeout.
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &AnthropicClient{
		apiKey: apiKey,
		logger: logger.With("provider", "anthropic"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
		),
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []anthropicContent
}

type anthropicContent struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicStreamEvent struct {
	Type  string             `json:"type"`
	Delta *anthropicDelta    `json:"delta,omitempty"`
	Usage *anthropicUsage    `json:"usage,omitempty"`
	Msg   *anthropicResponse `json:"message,omitempty"`
}

type anthropicDelta struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`
}

// Generate sends a non-streaming generation request.
func (c *AnthropicClient) Generate(ctx context.Context, model string, req Request) (*Response, error) {
	body, err := c.do(ctx, model, req, false)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var wire anthropicResponse
	if err := json.NewDecoder(body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var text strings.Builder
	for _, block := range wire.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Response{
		Text:         text.String(),
		Model:        wire.Model,
		CreatedAt:    time.Now().UTC(),
		InputTokens:  wire.Usage.InputTokens,
		OutputTokens: wire.Usage.OutputTokens,
	}, nil
}

// GenerateStream sends a streaming request, delivering text deltas to
// callback as SSE events arrive.
func (c *AnthropicClient) GenerateStream(ctx context.Context, model string, req Request, callback StreamCallback) (*Response, error) {
	if callback == nil {
		return c.Generate(ctx, model, req)
	}

	body, err := c.do(ctx, model, req, true)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	resp := &Response{Model: model, CreatedAt: time.Now().UTC()}
	var text strings.Builder

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			continue
		}
		switch event.Type {
		case "message_start":
			if event.Msg != nil {
				resp.InputTokens = event.Msg.Usage.InputTokens
			}
		case "content_block_delta":
			if event.Delta != nil && event.Delta.Text != "" {
				text.WriteString(event.Delta.Text)
				callback(event.Delta.Text)
			}
		case "message_delta":
			if event.Usage != nil {
				resp.OutputTokens = event.Usage.OutputTokens
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}

	resp.Text = text.String()
	return resp, nil
}

// Ping verifies the API key is usable with a minimal request.
func (c *AnthropicClient) Ping(ctx context.Context) error {
	if c.apiKey == "" {
		return fmt.Errorf("anthropic api key not configured")
	}
	body, err := c.do(ctx, "claude-3-5-haiku-latest", Request{Prompt: "ping", MaxTokens: 1}, false)
	if err != nil {
		return err
	}
	body.Close()
	return nil
}

func (c *AnthropicClient) do(ctx context.Context, model string, req Request, stream bool) (io.ReadCloser, error) {
	wire := anthropicRequest{
		Model:     model,
		System:    req.System,
		MaxTokens: req.MaxTokens,
		Stream:    stream,
		Messages:  []anthropicMessage{buildAnthropicUserMessage(req)},
	}
	if wire.MaxTokens == 0 {
		wire.MaxTokens = 1024
	}
	if req.Temperature != 0 {
		temp := req.Temperature
		wire.Temperature = &temp
	}

	jsonData, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, LevelTrace, "anthropic request", "payload", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", anthropicAPIURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 512)
		resp.Body.Close()
		return nil, fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, errBody)
	}

	return resp.Body, nil
}

func buildAnthropicUserMessage(req Request) anthropicMessage {
	if len(req.Images) == 0 {
		return anthropicMessage{Role: "user", Content: req.Prompt}
	}
	blocks := make([]anthropicContent, 0, len(req.Images)+1)
	for _, img := range req.Images {
		blocks = append(blocks, anthropicContent{
			Type: "image",
			Source: &anthropicImageSource{
				Type:      "base64",
				MediaType: detectImageMediaType(img),
				Data:      base64.StdEncoding.EncodeToString(img),
			},
		})
	}
	blocks = append(blocks, anthropicContent{Type: "text", Text: req.Prompt})
	return anthropicMessage{Role: "user", Content: blocks}
}

// detectImageMediaType sniffs the image format from magic bytes.
// Defaults to JPEG, the common webcam frame format.
func detectImageMediaType(data []byte) string {
	switch {
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}):
		return "image/png"
	case len(data) >= 4 && bytes.Equal(data[:4], []byte("GIF8")):
		return "image/gif"
	case len(data) >= 12 && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
