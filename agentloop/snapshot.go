package agentloop

import (
	"context"

	"github.com/martinemde/draftloop/unifiedllm"
)

// Snapshot is the state handed to a Snapshotter after every iteration.
type Snapshot struct {
	RunID     string               `json:"run_id"`
	Query     string               `json:"query"`
	Iteration int                  `json:"iteration"`
	History   []unifiedllm.Message `json:"history"`
	Step      Step                 `json:"step"`
	// Final is set on the snapshot taken when the run produced its answer.
	Final  bool   `json:"final"`
	Answer string `json:"answer,omitempty"`
}

// Snapshotter persists run state. Errors are logged and never stop a run.
type Snapshotter interface {
	Snapshot(ctx context.Context, snap Snapshot) error
}

// SnapshotFunc adapts a function to Snapshotter.
type SnapshotFunc func(ctx context.Context, snap Snapshot) error

func (f SnapshotFunc) Snapshot(ctx context.Context, snap Snapshot) error { return f(ctx, snap) }

// MultiSnapshotter fans a snapshot out to several writers and returns the
// first error after trying all of them.
func MultiSnapshotter(writers ...Snapshotter) Snapshotter {
	return SnapshotFunc(func(ctx context.Context, snap Snapshot) error {
		var first error
		for _, w := range writers {
			if err := w.Snapshot(ctx, snap); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
