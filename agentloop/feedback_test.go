package agentloop

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFeedback(t *testing.T) {
	tests := map[string]FeedbackResponse{
		"":                 {Kind: FeedbackContinue},
		"y":                {Kind: FeedbackContinue},
		"YES\n":            {Kind: FeedbackContinue},
		"n":                {Kind: FeedbackForceStop},
		" No ":             {Kind: FeedbackForceStop},
		"look at cmd/ too": {Kind: FeedbackText, Text: "look at cmd/ too"},
	}
	for raw, want := range tests {
		assert.Equal(t, want, ParseFeedback(raw), "input %q", raw)
	}
	assert.Equal(t, "force_stop", FeedbackForceStop.String())
}

func TestReaderFeedback(t *testing.T) {
	var out bytes.Buffer
	fb := NewReaderFeedback(strings.NewReader("check tests\nn\n"), &out)

	resp, err := fb.Ask(context.Background(), Step{})
	require.NoError(t, err)
	assert.Equal(t, FeedbackResponse{Kind: FeedbackText, Text: "check tests"}, resp)

	resp, err = fb.Ask(context.Background(), Step{})
	require.NoError(t, err)
	assert.Equal(t, FeedbackForceStop, resp.Kind)

	resp, err = fb.Ask(context.Background(), Step{})
	require.NoError(t, err, "end of input continues")
	assert.Equal(t, FeedbackContinue, resp.Kind)

	assert.Equal(t, 3, strings.Count(out.String(), "Allow the agent to iterate again?"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = fb.Ask(ctx, Step{})
	assert.Error(t, err)
}
