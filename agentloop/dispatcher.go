package agentloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

const skippedReason = "run cancelled"

// Dispatcher runs parsed actions against a registry.
type Dispatcher struct {
	Registry *ToolRegistry
	// MaxParallel bounds the parallel batch. Zero means unbounded.
	MaxParallel int
	CharLimits  map[string]int
	LineLimits  map[string]int
	Emitter     *EventEmitter
	Logger      *slog.Logger
}

// Dispatch returns exactly one observation per action. Unknown tools come
// first, then serial tools in request order, then the parallel batch in
// request order. Tool failures become error observations; once ctx is done
// the remaining actions are recorded as skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, actions []ActionRequest, goal string) []Observation {
	type pending struct {
		action ActionRequest
		tool   Tool
	}
	var (
		missing  []Observation
		serial   []pending
		parallel []pending
	)
	for _, a := range actions {
		tool, ok := d.Registry.Get(a.Tool)
		switch {
		case !ok:
			d.logger().Warn("tool not found", "tool", a.Tool)
			missing = append(missing, Observation{Tool: a.Tool, Input: a.Input, Status: ObservationNotFound})
		case tool.Serial:
			serial = append(serial, pending{a, tool})
		default:
			parallel = append(parallel, pending{a, tool})
		}
	}

	out := make([]Observation, 0, len(actions))
	out = append(out, missing...)

	for _, p := range serial {
		out = append(out, d.run(ctx, p.tool, p.action, goal))
	}

	results := make([]Observation, len(parallel))
	var g errgroup.Group
	if d.MaxParallel > 0 {
		g.SetLimit(d.MaxParallel)
	}
	for i, p := range parallel {
		g.Go(func() error {
			results[i] = d.run(ctx, p.tool, p.action, goal)
			return nil
		})
	}
	_ = g.Wait()

	return append(out, results...)
}

// run executes one action and never fails: every outcome is an Observation.
func (d *Dispatcher) run(ctx context.Context, tool Tool, a ActionRequest, goal string) (obs Observation) {
	obs = Observation{Tool: a.Tool, Input: a.Input}
	if ctx.Err() != nil {
		obs.Status = ObservationSkipped
		obs.Output = skippedReason
		return obs
	}

	d.Emitter.Emit(EventToolCallStart, map[string]any{"tool": a.Tool, "input": a.Input})
	defer func() {
		if r := recover(); r != nil {
			err := &ToolExecutionError{Tool: a.Tool, Input: a.Input, Err: fmt.Errorf("panic: %v", r)}
			obs = d.failed(obs, err)
		}
	}()

	output, err := tool.Run(ctx, a.Input, goal)
	if err != nil {
		var te *ToolExecutionError
		if !errors.As(err, &te) {
			te = &ToolExecutionError{Tool: a.Tool, Input: a.Input, Err: err}
		}
		return d.failed(obs, te)
	}

	d.Emitter.Emit(EventToolCallEnd, map[string]any{"tool": a.Tool, "output": output})
	obs.Status = ObservationOK
	obs.Output = TruncateToolOutput(output, a.Tool, d.CharLimits, d.LineLimits)
	return obs
}

func (d *Dispatcher) failed(obs Observation, err *ToolExecutionError) Observation {
	d.logger().Warn("tool failed", "tool", err.Tool, "input", err.Input, "error", err.Err)
	d.Emitter.Emit(EventToolCallEnd, map[string]any{"tool": err.Tool, "error": err.Err.Error()})
	obs.Status = ObservationError
	obs.Output = TruncateToolOutput(err.Err.Error(), obs.Tool, d.CharLimits, d.LineLimits)
	return obs
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
