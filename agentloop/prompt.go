package agentloop

import (
	"fmt"
	"strings"
)

const forcedThought = "the user wants me to answer immediately."

// PromptBuilder renders the user prompt for one iteration.
type PromptBuilder struct {
	Labels       Labels
	OutputFormat string
	Registry     *ToolRegistry
}

// Build joins the tool list, the format instructions and the progress
// block, then appends the suffix that starts the model's reply.
func (p PromptBuilder) Build(query, progressText string, forced bool) string {
	prefix := "You have access to the following tools:\n" + p.Registry.Descriptions()
	progress := fmt.Sprintf("Begin!\n%s: %s\n%s", p.Labels.Request, query, progressText)
	return strings.Join([]string{prefix, p.instructions(), progress}, "\n\n") + p.suffix(forced)
}

func (p PromptBuilder) suffix(forced bool) string {
	if forced {
		return p.Labels.Thought + ": " + forcedThought + "\n" + p.Labels.FinalAnswer + ":"
	}
	return p.Labels.Thought + ":"
}

// StopSequence stops the model before it invents an observation.
func (p PromptBuilder) StopSequence() string {
	return "\n" + p.Labels.Observation
}

func (p PromptBuilder) instructions() string {
	l := p.Labels
	format := p.OutputFormat
	if format == "" {
		format = "the answer to the request"
	}
	names := strings.Join(p.Registry.Names(), ", ")

	var b strings.Builder
	fmt.Fprintf(&b, "Use the following format:\n")
	fmt.Fprintf(&b, "%s: the request you must fulfill\n", l.Request)
	fmt.Fprintf(&b, "%s: I know the answer\n", l.Thought)
	fmt.Fprintf(&b, "%s: %s\n\nor\n\n", l.FinalAnswer, format)
	fmt.Fprintf(&b, "%s: I need to use a tool to solve this problem\n", l.Thought)
	fmt.Fprintf(&b, "%s: the actions to take, one or more of [%s] followed by input, e.g.\n", l.Action, names)
	fmt.Fprintf(&b, "- listFiles src\n- viewFile path/to/file\n")
	fmt.Fprintf(&b, "%s: the result of the actions\n", l.Observation)
	fmt.Fprintf(&b, "... (this %s/%s/%s can repeat N times)\n", l.Thought, l.Action, l.Observation)
	fmt.Fprintf(&b, "%s: I now know the final answer\n", l.Thought)
	fmt.Fprintf(&b, "%s: ...", l.FinalAnswer)
	return b.String()
}
