package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// provider pairs a client with the model name it should serve.
type provider struct {
	name   string
	model  string
	client Client
}

// Failover tries providers in registration order until one succeeds.
// The local Ollama instance registers first; a frontier provider (when
// configured) acts as the safety net. Per-call model overrides are
// intentionally absent: each provider serves its configured model, so
// the orchestrator only ever asks for "chat", "background", or
// "vision" capability via separate Failover instances.
type Failover struct {
	providers []provider
	logger    *slog.Logger
}

// NewFailover creates an empty failover chain.
func NewFailover(logger *slog.Logger) *Failover {
	if logger == nil {
		logger = slog.Default()
	}
	return &Failover{logger: logger}
}

// Add appends a provider to the chain. Nil clients are ignored so
// wiring code can pass optional providers unconditionally.
func (f *Failover) Add(name, model string, client Client) {
	if client == nil {
		return
	}
	f.providers = append(f.providers, provider{name: name, model: model, client: client})
}

// Len returns the number of registered providers.
func (f *Failover) Len() int { return len(f.providers) }

// Generate tries each provider in order, returning the first success.
func (f *Failover) Generate(ctx context.Context, model string, req Request) (*Response, error) {
	return f.GenerateStream(ctx, model, req, nil)
}

// GenerateStream tries each provider in order. The model argument is a
// per-call override; empty uses each provider's configured model.
func (f *Failover) GenerateStream(ctx context.Context, model string, req Request, callback StreamCallback) (*Response, error) {
	if len(f.providers) == 0 {
		return nil, fmt.Errorf("no llm providers configured")
	}

	var errs []error
	for _, p := range f.providers {
		m := p.model
		if model != "" {
			m = model
		}
		resp, err := p.client.GenerateStream(ctx, m, req, callback)
		if err == nil {
			return resp, nil
		}
		// A cancelled context will fail everywhere; stop early.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Warn("llm provider failed, trying next",
			"provider", p.name,
			"model", m,
			"error", err,
		)
		errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
	}
	return nil, fmt.Errorf("all llm providers failed: %w", errors.Join(errs...))
}

// Ping succeeds if any provider is reachable.
func (f *Failover) Ping(ctx context.Context) error {
	if len(f.providers) == 0 {
		return fmt.Errorf("no llm providers configured")
	}
	var errs []error
	for _, p := range f.providers {
		if err := p.client.Ping(ctx); err == nil {
			return nil
		} else {
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
		}
	}
	return fmt.Errorf("no llm provider reachable: %w", errors.Join(errs...))
}
