package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/martinemde/draftloop/agentloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".draftloop", "history.json")
	s := NewJSONFileStore(path)

	history, err := s.LoadHistory()
	require.NoError(t, err)
	assert.Nil(t, history)

	require.NoError(t, s.Snapshot(context.Background(), agentloop.Snapshot{History: testHistory(3)}))
	require.NoError(t, s.Snapshot(context.Background(), agentloop.Snapshot{History: testHistory(5)}))

	history, err = s.LoadHistory()
	require.NoError(t, err)
	assert.Equal(t, testHistory(5), history)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "[\n  {\n    \"role\": \"system\""))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are renamed into place")
}

func TestJSONFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewJSONFileStore(path).LoadHistory()
	assert.ErrorContains(t, err, "decode history")
}
