package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAskUser(t *testing.T) {
	var asked []string
	out, err := AskUser(recordingPrompter{asked: &asked}).Run(context.Background(), "Which port?", "")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, []string{"Which port?"}, asked)

	out, err = AskUser(StaticPrompter{Answer: "8080"}).Run(context.Background(), "Which port?", "")
	require.NoError(t, err)
	assert.Equal(t, "8080", out)
}

func TestTellUser(t *testing.T) {
	out, err := TellUser(StaticPrompter{}).Run(context.Background(), "Restart the server", "")
	require.NoError(t, err)
	assert.Equal(t, "User acknowledged", out)

	out, err = TellUser(StaticPrompter{Answer: "done, it is up"}).Run(context.Background(), "Restart the server", "")
	require.NoError(t, err)
	assert.Equal(t, "User replied: done, it is up", out)
}
