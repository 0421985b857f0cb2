package tools

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Prompter is the human on the other side of interactive tools.
type Prompter interface {
	// Confirm asks a yes/no question. The default answer is no.
	Confirm(ctx context.Context, question string) (bool, error)
	// Ask requests free text input.
	Ask(ctx context.Context, question string) (string, error)
}

// ReaderPrompter asks questions on w and reads answers line by line from r.
// Share one bufio.Reader with any other consumer of the same input.
type ReaderPrompter struct {
	mu sync.Mutex
	r  *bufio.Reader
	w  io.Writer
}

func NewReaderPrompter(r io.Reader, w io.Writer) *ReaderPrompter {
	return &ReaderPrompter{r: bufio.NewReader(r), w: w}
}

func (p *ReaderPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	answer, err := p.prompt(ctx, question+" [y/N] ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (p *ReaderPrompter) Ask(ctx context.Context, question string) (string, error) {
	return p.prompt(ctx, question+"\n> ")
}

// prompt returns the trimmed reply. End of input is an empty reply.
func (p *ReaderPrompter) prompt(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := io.WriteString(p.w, text); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}
	line, err := p.r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// StaticPrompter answers every question the same way. It stands in for a
// human when input is not a terminal.
type StaticPrompter struct {
	Confirmed bool
	Answer    string
}

func (p StaticPrompter) Confirm(ctx context.Context, _ string) (bool, error) {
	return p.Confirmed, ctx.Err()
}

func (p StaticPrompter) Ask(ctx context.Context, _ string) (string, error) {
	return p.Answer, ctx.Err()
}
