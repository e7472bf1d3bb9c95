package llm

import "context"

// Client is the interface all LLM providers implement.
type Client interface {
	// Generate sends a generation request and returns the full response.
	Generate(ctx context.Context, model string, req Request) (*Response, error)

	// GenerateStream sends a streaming request. If callback is non-nil,
	// tokens are delivered to it as they arrive; the returned Response
	// carries the concatenated text and final metadata.
	GenerateStream(ctx context.Context, model string, req Request, callback StreamCallback) (*Response, error)

	// Ping checks whether the provider is reachable. Called at startup
	// and by the periodic health check.
	Ping(ctx context.Context) error
}
