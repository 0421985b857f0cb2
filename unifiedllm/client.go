package unifiedllm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Middleware wraps a provider call. It receives the request and a next function
// that calls the downstream handler, and returns the response.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error)

// Client holds registered provider adapters, routes requests by provider
// identifier, and applies middleware.
type Client struct {
	providers       map[string]ProviderAdapter
	defaultProvider string
	middleware      []Middleware
	mu              sync.RWMutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers a provider adapter.
func WithProvider(name string, adapter ProviderAdapter) ClientOption {
	return func(c *Client) {
		c.providers[name] = adapter
	}
}

// WithDefaultProvider sets the default provider name.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// WithMiddleware adds middleware to the client.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]ProviderAdapter),
	}
	for _, opt := range opts {
		opt(c)
	}
	// If no default and exactly one provider, use it.
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c
}

// RegisterProvider adds a provider adapter to the client.
func (c *Client) RegisterProvider(name string, adapter ProviderAdapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = adapter
	if c.defaultProvider == "" {
		c.defaultProvider = name
	}
}

// Use appends middleware after construction.
func (c *Client) Use(mw ...Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middleware = append(c.middleware, mw...)
}

// Providers returns the registered provider names.
func (c *Client) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	return names
}

// resolveProvider determines which provider adapter to use for a request.
func (c *Client) resolveProvider(req Request) (ProviderAdapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := req.Provider
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		if info := GetModelInfo(req.Model); info != nil {
			name = info.Provider
		}
	}
	if name == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "no provider specified and no default provider configured",
		}}
	}

	adapter, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("provider %q is not registered", name),
		}}
	}
	return adapter, nil
}

// Complete sends a blocking request through middleware to the resolved provider.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	adapter, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = adapter.Name()
	}

	handler := func(ctx context.Context, r Request) (*Response, error) {
		return adapter.Complete(ctx, r)
	}

	c.mu.RLock()
	chain := append([]Middleware(nil), c.middleware...)
	c.mu.RUnlock()

	// Apply middleware in reverse order so first registered runs first.
	for i := len(chain) - 1; i >= 0; i-- {
		mw := chain[i]
		next := handler
		handler = func(ctx context.Context, r Request) (*Response, error) {
			return mw(ctx, r, next)
		}
	}

	return handler(ctx, req)
}

// Close releases resources held by all registered providers.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var firstErr error
	for _, adapter := range c.providers {
		if closer, ok := adapter.(Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// CacheMiddleware answers repeated requests from cache. Cache failures are
// logged and otherwise ignored.
func CacheMiddleware(cache Cache, logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		key := req.CacheKey()
		if cached, ok, err := cache.Get(ctx, key); err != nil {
			logger.Warn("completion cache read failed", "error", err)
		} else if ok {
			cached.Cached = true
			return cached, nil
		}

		resp, err := next(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := cache.Set(ctx, key, resp); err != nil {
			logger.Warn("completion cache write failed", "error", err)
		}
		return resp, nil
	}
}

// LoggingMiddleware records each completion at debug level and failures at
// warn level.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		elapsed := time.Since(start)
		if err != nil {
			logger.Warn("completion failed",
				"provider", req.Provider, "model", req.Model,
				"elapsed", elapsed, "error", err)
			return nil, err
		}
		logger.Debug("completion",
			"provider", resp.Provider, "model", resp.Model,
			"elapsed", elapsed, "cached", resp.Cached,
			"input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)
		return resp, nil
	}
}

// NewClientFromEnv creates a Client by scanning environment variables for
// API keys. OpenAI is served by the native SDK adapter, Anthropic through gollm.
func NewClientFromEnv(model string) *Client {
	c := NewClient()

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.RegisterProvider("openai", NewOpenAIAdapter(key, WithOpenAIModel(model)))
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		if adapter, err := NewGollmAdapter("anthropic", key, WithModel(modelFor("anthropic", model))); err == nil {
			c.RegisterProvider("anthropic", adapter)
		}
	}
	return c
}

// modelFor returns model when it belongs to provider or is unknown to the
// catalog, and "" otherwise so the adapter picks its own default.
func modelFor(provider, model string) string {
	if info := GetModelInfo(model); info != nil && info.Provider != provider {
		return ""
	}
	return model
}
