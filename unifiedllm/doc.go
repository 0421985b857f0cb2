// Package unifiedllm is a small provider-agnostic completion client. A Client
// routes Requests to registered ProviderAdapters and wraps every call in a
// middleware chain.
//
// # Adapters
//
//   - OpenAIAdapter calls the Chat Completions API through github.com/openai/openai-go.
//   - GollmAdapter wraps github.com/teilomillet/gollm for the other providers gollm supports.
//   - FakeAdapter answers offline, either from a script or by echoing the prompt.
//
// Stop sequences are applied to the returned text by every adapter, so
// callers get the same cut regardless of backend support.
//
// # Middleware
//
//	client := unifiedllm.NewClient(
//	    unifiedllm.WithProvider("openai", unifiedllm.NewOpenAIAdapter(key)),
//	    unifiedllm.WithMiddleware(
//	        unifiedllm.LoggingMiddleware(logger),
//	        unifiedllm.CacheMiddleware(unifiedllm.NewMemoryCache(), logger),
//	        unifiedllm.RetryMiddleware(unifiedllm.DefaultRetryPolicy()),
//	    ),
//	)
//
// Middleware runs in registration order on the way in. RedisCache can stand
// in for MemoryCache to share answers across processes.
//
// # Errors
//
// Provider failures map onto a typed hierarchy rooted at SDKError.
// IsRetryable inspects wrapped errors with errors.As.
//
// # Model Catalog
//
//	unifiedllm.ResolveModel("4")        // "gpt-4"
//	unifiedllm.ListModels("anthropic")
package unifiedllm
