package agentloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopRun(ctx context.Context, input, goal string) (string, error) { return "", nil }

func TestToolRegistry(t *testing.T) {
	reg, err := NewToolRegistry(
		Tool{Name: "listFiles", Description: "List files in a folder", Run: nopRun},
		Tool{Name: "askUser", Description: "Ask the user", Serial: true, Run: nopRun},
	)
	require.NoError(t, err)

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"listFiles", "askUser"}, reg.Names())
	assert.Equal(t, "listFiles: List files in a folder\naskUser: Ask the user", reg.Descriptions())

	tool, ok := reg.Get("askUser")
	require.True(t, ok)
	assert.True(t, tool.Serial)

	_, ok = reg.Get("rm")
	assert.False(t, ok)

	names := reg.Names()
	names[0] = "changed"
	assert.Equal(t, "listFiles", reg.Tools()[0].Name)
}

func TestToolRegistryRejectsBadTools(t *testing.T) {
	cases := map[string][]Tool{
		"empty name":  {{Run: nopRun}},
		"whitespace":  {{Name: "list files", Run: nopRun}},
		"missing run": {{Name: "ls"}},
		"duplicate":   {{Name: "ls", Run: nopRun}, {Name: "ls", Run: nopRun}},
	}
	for name, tools := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewToolRegistry(tools...)
			assert.Error(t, err)
		})
	}
	assert.Panics(t, func() { MustToolRegistry(Tool{}) })
}
