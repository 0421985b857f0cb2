package unifiedllm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FormatTranscript renders messages as "role:\ncontent" blocks separated by
// "\n---\n".
func FormatTranscript(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, string(m.Role)+":\n"+m.Content)
	}
	return strings.Join(parts, "\n---\n")
}

// TranscriptMiddleware writes each request to a file in dir before the call
// and rewrites it with the assistant reply afterwards. Write failures are
// logged and never fail the completion.
func TranscriptMiddleware(dir string, logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		name := fmt.Sprintf("request-%s.txt", time.Now().UTC().Format("20060102T150405.000000000"))
		path := filepath.Join(dir, name)

		write := func(messages []Message) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				logger.Warn("transcript dir", "error", err)
				return
			}
			if err := os.WriteFile(path, []byte(FormatTranscript(messages)), 0o644); err != nil {
				logger.Warn("transcript write", "path", path, "error", err)
			}
		}

		write(req.Messages)
		resp, err := next(ctx, req)
		if err != nil {
			return nil, err
		}
		write(append(append([]Message(nil), req.Messages...), AssistantMessage(resp.Text)))
		logger.Debug("wrote transcript", "model", req.Model, "path", path)
		return resp, nil
	}
}
