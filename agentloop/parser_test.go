package agentloop

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultParser() Parser {
	return Parser{Labels: DefaultLabels(), StopTool: "create"}
}

func TestParseSections(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     Step
	}{
		{
			name:     "final answer only",
			response: "Final Answer: 42",
			want:     Step{FinalAnswer: "42"},
		},
		{
			name:     "leading thought without label",
			response: " I should look around\nAction: listFiles .",
			want: Step{
				Thought:       "I should look around",
				Action:        "listFiles .",
				ParsedActions: []ActionRequest{{Tool: "listFiles", Input: "."}},
			},
		},
		{
			name:     "multi line sections",
			response: "I need two files\nand a search\n\nAction:\n- viewFile a.go\n- findInsideFiles foo",
			want: Step{
				Thought: "I need two files\nand a search",
				Action:  "- viewFile a.go\n- findInsideFiles foo",
				ParsedActions: []ActionRequest{
					{Tool: "viewFile", Input: "a.go"},
					{Tool: "findInsideFiles", Input: "foo"},
				},
			},
		},
		{
			name:     "thought then final answer",
			response: "I now know\nFinal Answer: edit main.go\nand README.md",
			want:     Step{Thought: "I now know", FinalAnswer: "edit main.go\nand README.md"},
		},
		{
			name:     "repeated thought label",
			response: " first\nThought: second",
			want:     Step{Thought: "first\nsecond"},
		},
		{
			name:     "hallucinated observation ends parsing",
			response: " look\nAction: listFiles\nObservation: a.go b.go\nFinal Answer: made up",
			want: Step{
				Thought:       "look",
				Action:        "listFiles",
				ParsedActions: []ActionRequest{{Tool: "listFiles"}},
			},
		},
		{
			name:     "empty response",
			response: "\n\n",
			want:     Step{},
		},
	}

	p := defaultParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Parse(tt.response)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCustomLabels(t *testing.T) {
	p := Parser{Labels: Labels{
		Request:     "Task",
		Thought:     "Reasoning",
		Action:      "Commands",
		Observation: "Result",
		FinalAnswer: "Plan",
	}}

	got, err := p.Parse("Reasoning: check\nCommands: listFiles src\nResult: nothing")
	require.NoError(t, err)
	assert.Equal(t, "check", got.Thought)
	assert.Equal(t, []ActionRequest{{Tool: "listFiles", Input: "src"}}, got.ParsedActions)

	got, err = p.Parse("Final Answer: not a label here")
	require.NoError(t, err)
	assert.Empty(t, got.FinalAnswer)
	assert.Equal(t, "Final Answer: not a label here", got.Thought)
}

func TestParseActionFailureRecordsParseError(t *testing.T) {
	got, err := defaultParser().Parse(" hmm\nAction:\n- listFiles .\n- \"\"")

	var perr *ActionParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "hmm", got.Thought)
	assert.True(t, got.HasAction())
	assert.Nil(t, got.ParsedActions, "a partial action list must never be dispatched")
	assert.Contains(t, got.ParseError, "missing tool name")

	got, err = defaultParser().Parse("Thought: list it\nAction:\n- listFiles .\n- ")
	require.True(t, errors.As(err, &perr), "a dangling bullet has no tool name")
	assert.Nil(t, got.ParsedActions)
}

func TestParseActions(t *testing.T) {
	tests := []struct {
		name   string
		action string
		want   []ActionRequest
	}{
		{"bullets keep order", "- a x\n- b y", []ActionRequest{{"a", "x"}, {"b", "y"}}},
		{"trailing colon", "viewFile: path/to/file", []ActionRequest{{"viewFile", "path/to/file"}}},
		{"no input", "listFiles", []ActionRequest{{Tool: "listFiles"}}},
		{"quoted line", `"findFileNames *.go"`, []ActionRequest{{"findFileNames", "*.go"}}},
		{"quoted tool with colon", `- "viewFile": main.go`, []ActionRequest{{"viewFile", "main.go"}}},
		{"quoted single input", `- findInsideFiles "hello world"`, []ActionRequest{{"findInsideFiles", "hello world"}}},
		{"quoted multiple inputs kept", `- mv "a b" "c d"`, []ActionRequest{{"mv", `"a b" "c d"`}}},
		{"tab separator", "findInsideFiles\tfoo bar", []ActionRequest{{"findInsideFiles", "foo bar"}}},
		{"blank lines ignored", "\n- a x\n\n   \n- b\n", []ActionRequest{{"a", "x"}, {Tool: "b"}}},
		{"sentinel stops", "- create foo\n- b y", []ActionRequest{{"create", "foo"}}},
		{"sentinel after others", "- a x\n- create foo\n- ::", []ActionRequest{{"a", "x"}, {"create", "foo"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseActions(tt.action, "create")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseActionsFailures(t *testing.T) {
	for _, action := range []string{"", "\n  \n", "- a x\n:", "- a x\n- ''", "- b\n- \"\": y", "- a x\n- ", "- a x\n-", "-"} {
		got, err := ParseActions(action, "create")
		var perr *ActionParseError
		assert.Truef(t, errors.As(err, &perr), "expected ActionParseError for %q, got %v", action, err)
		assert.Nil(t, got)
	}
}

func TestParseActionsSentinelDisabled(t *testing.T) {
	got, err := ParseActions("- create foo\n- b y", "")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestParseForcedAnswer(t *testing.T) {
	p := defaultParser()
	assert.Equal(t, "edit main.go", p.ParseForcedAnswer(" edit main.go \n"))
	assert.Equal(t, "edit main.go", p.ParseForcedAnswer("Final Answer: edit main.go"))
	assert.Empty(t, p.ParseForcedAnswer("  \n"))
}

func TestParseRenderRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	b := WindowBuilder{Labels: DefaultLabels(), Counter: RuneCounter{}}
	p := defaultParser()

	properties.Property("rendered steps parse back to the same thought and action", prop.ForAll(
		func(thought, tool, arg string) bool {
			step := Step{Thought: thought, Action: tool + " " + arg}
			rendered := b.renderStep(step, 1<<20, RuneCounter{})

			got, err := p.Parse(rendered)
			if err != nil {
				return false
			}
			return got.Thought == step.Thought &&
				got.Action == step.Action &&
				len(got.ParsedActions) == 1 &&
				got.ParsedActions[0] == ActionRequest{Tool: tool, Input: arg}
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.Property("action lists keep their order", prop.ForAll(
		func(tools []string) bool {
			if len(tools) == 0 {
				return true
			}
			action := ""
			for i, tool := range tools {
				action += "- " + tool + " arg" + string(rune('a'+i%26)) + "\n"
			}
			got, err := ParseActions(action, "")
			if err != nil || len(got) != len(tools) {
				return false
			}
			for i, tool := range tools {
				if got[i].Tool != tool {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t)
}
