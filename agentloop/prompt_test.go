package agentloop

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPromptBuild(t *testing.T) {
	reg := MustToolRegistry(
		Tool{Name: "listFiles", Description: "List files in a folder", Run: nopRun},
		Tool{Name: "viewFile", Description: "Show a file", Run: nopRun},
	)
	p := PromptBuilder{Labels: DefaultLabels(), OutputFormat: "a list of files", Registry: reg}

	prompt := p.Build("find the router", "Thought: look\n", false)
	assert.True(t, strings.HasPrefix(prompt, "You have access to the following tools:\nlistFiles: List files in a folder\nviewFile: Show a file\n\n"))
	assert.Contains(t, prompt, "Final Answer: a list of files\n")
	assert.Contains(t, prompt, "one or more of [listFiles, viewFile]")
	assert.Contains(t, prompt, "\n\nBegin!\nRequest: find the router\nThought: look\n")
	assert.True(t, strings.HasSuffix(prompt, "Thought: look\nThought:"))

	forced := p.Build("find the router", "", true)
	assert.True(t, strings.HasSuffix(forced, "Request: find the router\nThought: the user wants me to answer immediately.\nFinal Answer:"))

	assert.Equal(t, "\nObservation", p.StopSequence())
}

func TestPromptUsesCustomLabels(t *testing.T) {
	labels := DefaultLabels()
	labels.Request = "Task"
	labels.Action = "Command"
	p := PromptBuilder{Labels: labels, Registry: MustToolRegistry()}

	prompt := p.Build("q", "", false)
	assert.Contains(t, prompt, "Task: the request you must fulfill")
	assert.Contains(t, prompt, "Command: the actions to take")
	assert.Contains(t, prompt, "Thought/Command/Observation")
	assert.Contains(t, prompt, "Final Answer: the answer to the request\n")
}
