package unifiedllm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FakeAdapter answers without calling any backend. Scripted responses are
// returned first, in order; after that it echoes the last non-blank line of
// the most recent user message.
type FakeAdapter struct {
	mu       sync.Mutex
	scripted []string
	delay    time.Duration
	requests []Request
}

// NewFakeAdapter creates a FakeAdapter with optional scripted responses.
func NewFakeAdapter(scripted ...string) *FakeAdapter {
	return &FakeAdapter{scripted: append([]string(nil), scripted...)}
}

// WithDelay makes every completion wait d before answering.
func (f *FakeAdapter) WithDelay(d time.Duration) *FakeAdapter {
	f.delay = d
	return f
}

// Script queues responses to return before falling back to the echo.
func (f *FakeAdapter) Script(responses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripted = append(f.scripted, responses...)
}

// Requests returns a copy of every request received so far.
func (f *FakeAdapter) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

func (f *FakeAdapter) Name() string { return "fake" }

func (f *FakeAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	if f.delay > 0 {
		timer := time.NewTimer(f.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, &AbortError{SDKError: SDKError{Message: "completion cancelled", Cause: ctx.Err()}}
		case <-timer.C:
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	var text string
	if len(f.scripted) > 0 {
		text = f.scripted[0]
		f.scripted = f.scripted[1:]
	} else {
		text = echoResponse(req)
	}
	f.mu.Unlock()

	finish := FinishReason{Reason: "stop", Raw: "stop"}
	if cut, ok := ApplyStopSequences(text, req.StopSequences); ok {
		text = cut
		finish.Raw = "stop_sequence"
	}

	model := ResolveModel(req.Model)
	return &Response{
		ID:           "fake_" + uuid.New().String()[:8],
		Model:        model,
		Provider:     f.Name(),
		Text:         text,
		FinishReason: finish,
		Usage:        Usage{InputTokens: estimateTokens(req), OutputTokens: len(text) / 4, TotalTokens: estimateTokens(req) + len(text)/4},
	}, nil
}

func echoResponse(req Request) string {
	content := req.LastUserMessage()
	if content == "" {
		content = "unknown"
	}
	lastLine := ""
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) != "" {
			lastLine = line
		}
	}
	model := strings.TrimPrefix(ResolveModel(req.Model), "gpt-")
	return strings.TrimSpace(fmt.Sprintf("fake GPT-%s response to your request: %s", model, lastLine))
}
