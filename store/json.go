package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/martinemde/draftloop/agentloop"
	"github.com/martinemde/draftloop/unifiedllm"
)

// DefaultHistoryPath is where the CLI keeps the last run's chat history,
// relative to the working directory.
const DefaultHistoryPath = ".draftloop/history.json"

// JSONFileStore keeps the chat history of the latest snapshot in a single
// indented JSON file. Each snapshot replaces the file.
type JSONFileStore struct {
	path string
}

func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

func (s *JSONFileStore) Path() string { return s.path }

// Snapshot writes the history to a temp file and renames it into place so
// readers never see a partial file.
func (s *JSONFileStore) Snapshot(_ context.Context, snap agentloop.Snapshot) error {
	data, err := json.MarshalIndent(snap.History, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp history: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}

// LoadHistory reads the stored history. A missing file is an empty history.
func (s *JSONFileStore) LoadHistory() ([]unifiedllm.Message, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var history []unifiedllm.Message
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", s.path, err)
	}
	return history, nil
}
