package unifiedllm

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// chatCompletions is the slice of the OpenAI SDK the adapter calls.
type chatCompletions interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIAdapter talks to the Chat Completions API through the official SDK.
type OpenAIAdapter struct {
	completions chatCompletions
	model       string
	maxTokens   int64
}

// OpenAIAdapterOption configures an OpenAIAdapter.
type OpenAIAdapterOption func(*openAIAdapterConfig)

type openAIAdapterConfig struct {
	model     string
	baseURL   string
	maxTokens int64
}

// WithOpenAIModel sets the default model. Aliases are resolved.
func WithOpenAIModel(model string) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) { c.model = model }
}

// WithOpenAIBaseURL points the adapter at an OpenAI-compatible endpoint.
func WithOpenAIBaseURL(url string) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) { c.baseURL = url }
}

// WithOpenAIMaxTokens sets the default completion length.
func WithOpenAIMaxTokens(n int) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) { c.maxTokens = int64(n) }
}

// NewOpenAIAdapter creates an adapter using apiKey.
func NewOpenAIAdapter(apiKey string, opts ...OpenAIAdapterOption) *OpenAIAdapter {
	cfg := &openAIAdapterConfig{maxTokens: 1024}
	for _, opt := range opts {
		opt(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	// RetryMiddleware owns retries.
	reqOpts = append(reqOpts, option.WithMaxRetries(0))
	client := openai.NewClient(reqOpts...)

	return newOpenAIAdapter(&client.Chat.Completions, cfg)
}

func newOpenAIAdapter(completions chatCompletions, cfg *openAIAdapterConfig) *OpenAIAdapter {
	model := ResolveModel(cfg.model)
	if info := GetModelInfo(model); model == "" || (info != nil && info.Provider != "openai") {
		model = DefaultModel
	}
	return &OpenAIAdapter{completions: completions, model: model, maxTokens: cfg.maxTokens}
}

// Name returns "openai".
func (a *OpenAIAdapter) Name() string { return "openai" }

// Complete sends req as one chat completion call.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	params := a.translateRequest(req)

	completion, err := a.completions.New(ctx, params)
	if err != nil {
		return nil, a.translateError(ctx, err)
	}
	if len(completion.Choices) == 0 {
		return nil, &ProviderError{
			SDKError:  SDKError{Message: "completion returned no choices"},
			Provider:  a.Name(),
			Retryable: true,
		}
	}

	choice := completion.Choices[0]
	text := choice.Message.Content
	finish := FinishReason{Reason: mapOpenAIFinishReason(string(choice.FinishReason)), Raw: string(choice.FinishReason)}
	if cut, ok := ApplyStopSequences(text, req.StopSequences); ok {
		text = cut
		finish = FinishReason{Reason: "stop", Raw: "stop_sequence"}
	}

	return &Response{
		ID:           completion.ID,
		Model:        completion.Model,
		Provider:     a.Name(),
		Text:         text,
		FinishReason: finish,
		Usage: Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:  int(completion.Usage.TotalTokens),
		},
	}, nil
}

func (a *OpenAIAdapter) translateRequest(req Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	model := ResolveModel(req.Model)
	if model == "" {
		model = a.model
	}
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	switch {
	case req.MaxTokens != nil:
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	case a.maxTokens > 0:
		params.MaxTokens = openai.Int(a.maxTokens)
	}
	return params
}

func mapOpenAIFinishReason(raw string) string {
	switch raw {
	case "stop":
		return "stop"
	case "length":
		return "length"
	case "content_filter":
		return "content_filter"
	default:
		return "other"
	}
}

func (a *OpenAIAdapter) translateError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &AbortError{SDKError: SDKError{Message: "completion cancelled", Cause: err}}
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var after *float64
		if apiErr.Response != nil {
			after = parseRetryAfter(apiErr.Response.Header)
		}
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return ErrorFromStatusCode(apiErr.StatusCode, msg, a.Name(), apiErr.Code, err, after)
	}
	return &NetworkError{SDKError: SDKError{Message: "openai request failed", Cause: err}}
}

func parseRetryAfter(h http.Header) *float64 {
	v := h.Get("Retry-After")
	if v == "" {
		return nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &secs
}
