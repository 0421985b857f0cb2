package agentloop

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// FeedbackKind classifies a reply given between iterations.
type FeedbackKind int

const (
	FeedbackContinue FeedbackKind = iota
	FeedbackForceStop
	FeedbackText
)

func (k FeedbackKind) String() string {
	switch k {
	case FeedbackForceStop:
		return "force_stop"
	case FeedbackText:
		return "text"
	default:
		return "continue"
	}
}

// FeedbackResponse is one reply from the feedback channel.
type FeedbackResponse struct {
	Kind FeedbackKind
	Text string
}

// Feedback is asked between iterations when pausing is enabled. last is the
// step just appended to the transcript.
type Feedback interface {
	Ask(ctx context.Context, last Step) (FeedbackResponse, error)
}

// FeedbackFunc adapts a function to Feedback.
type FeedbackFunc func(ctx context.Context, last Step) (FeedbackResponse, error)

func (f FeedbackFunc) Ask(ctx context.Context, last Step) (FeedbackResponse, error) {
	return f(ctx, last)
}

// ParseFeedback maps raw input to a response: "n" or "no" forces an answer,
// "y", "yes" or nothing continues, and anything else is text for the agent.
func ParseFeedback(raw string) FeedbackResponse {
	text := strings.TrimSpace(raw)
	switch strings.ToLower(text) {
	case "n", "no":
		return FeedbackResponse{Kind: FeedbackForceStop}
	case "", "y", "yes":
		return FeedbackResponse{Kind: FeedbackContinue}
	default:
		return FeedbackResponse{Kind: FeedbackText, Text: text}
	}
}

// ReaderFeedback prompts on w and reads one line from r per question.
type ReaderFeedback struct {
	r *bufio.Reader
	w io.Writer
}

// NewReaderFeedback creates a line-oriented feedback channel.
func NewReaderFeedback(r io.Reader, w io.Writer) *ReaderFeedback {
	return &ReaderFeedback{r: bufio.NewReader(r), w: w}
}

const feedbackPrompt = "Allow the agent to iterate again? Type 'n' to force an answer, or type text to add comments for the agent\n> "

// Ask writes the prompt and parses the reply. End of input continues.
func (f *ReaderFeedback) Ask(ctx context.Context, _ Step) (FeedbackResponse, error) {
	if err := ctx.Err(); err != nil {
		return FeedbackResponse{}, err
	}
	if _, err := io.WriteString(f.w, feedbackPrompt); err != nil {
		return FeedbackResponse{}, fmt.Errorf("write feedback prompt: %w", err)
	}
	line, err := f.r.ReadString('\n')
	if err != nil && err != io.EOF {
		return FeedbackResponse{}, fmt.Errorf("read feedback: %w", err)
	}
	return ParseFeedback(line), nil
}
