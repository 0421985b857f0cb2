package agentloop

import (
	"sync"

	"github.com/martinemde/draftloop/unifiedllm"
)

// ChatHistory is the append-only model-facing conversation of a run. It is
// kept for audit and resume and plays no part in budget decisions.
type ChatHistory struct {
	mu       sync.Mutex
	messages []unifiedllm.Message
}

// Append records messages in order.
func (h *ChatHistory) Append(msgs ...unifiedllm.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgs...)
}

// Len returns the number of recorded messages.
func (h *ChatHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Messages returns a copy of the history.
func (h *ChatHistory) Messages() []unifiedllm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]unifiedllm.Message, len(h.messages))
	copy(out, h.messages)
	return out
}
