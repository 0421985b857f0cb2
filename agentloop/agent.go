package agentloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/martinemde/draftloop/unifiedllm"
)

// CouldNotFindAnswer is returned when no iteration produced an answer.
const CouldNotFindAnswer = "Could not find answer"

const (
	forcedStepThought = "I was forced to answer"
	userThoughtPrefix = "From user: "
)

// ErrAgentTerminated is returned by Run on an agent that already finished.
var ErrAgentTerminated = errors.New("agent has terminated")

// State is the loop controller's position in an iteration.
type State string

const (
	StateIdle        State = "idle"
	StateThinking    State = "thinking"
	StateParsing     State = "parsing"
	StateDispatching State = "dispatching"
	StateDeciding    State = "deciding"
	StateTerminated  State = "terminated"
)

// Agent drives one think/act/observe run against a completion backend.
type Agent struct {
	id       string
	client   unifiedllm.Completer
	registry *ToolRegistry
	config   Config

	logger      *slog.Logger
	emitter     *EventEmitter
	feedback    Feedback
	snapshotter Snapshotter
	counter     UnitCounter
	prior       []unifiedllm.Message

	transcript *Transcript
	history    *ChatHistory
	parser     Parser
	window     WindowBuilder
	prompts    PromptBuilder
	dispatcher *Dispatcher

	interrupted atomic.Bool
	mu          sync.Mutex
	state       State
	running     bool
	cancel      context.CancelFunc
}

// Option configures an Agent.
type Option func(*Agent)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(a *Agent) { a.config = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// WithFeedback sets the channel asked between iterations when
// Config.PauseBetween is on.
func WithFeedback(f Feedback) Option {
	return func(a *Agent) { a.feedback = f }
}

// WithSnapshotter persists run state after every iteration.
func WithSnapshotter(s Snapshotter) Option {
	return func(a *Agent) { a.snapshotter = s }
}

// WithUnitCounter overrides the counter named by Config.UnitCounter.
func WithUnitCounter(c UnitCounter) Option {
	return func(a *Agent) { a.counter = c }
}

// WithPriorMessages adds messages sent between the system message and the
// iteration prompt on every call.
func WithPriorMessages(msgs ...unifiedllm.Message) Option {
	return func(a *Agent) { a.prior = append(a.prior, msgs...) }
}

// WithRunID sets the run identifier instead of a random one.
func WithRunID(id string) Option {
	return func(a *Agent) { a.id = id }
}

// New creates an agent that calls client and may use the tools in registry.
func New(client unifiedllm.Completer, registry *ToolRegistry, opts ...Option) (*Agent, error) {
	if client == nil {
		return nil, errors.New("agentloop: nil completion client")
	}
	if registry == nil {
		registry = MustToolRegistry()
	}
	a := &Agent{
		id:       uuid.New().String(),
		client:   client,
		registry: registry,
		config:   DefaultConfig(),
		logger:   slog.Default(),
		history:  &ChatHistory{},
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if err := a.config.Validate(); err != nil {
		return nil, fmt.Errorf("agentloop: %w", err)
	}
	if a.counter == nil {
		counter, err := NewUnitCounter(a.config.UnitCounter, a.config.Model)
		if counter == nil {
			return nil, fmt.Errorf("agentloop: %w", err)
		}
		if err != nil {
			a.logger.Warn("falling back to approximate unit counter", "error", err)
		}
		a.counter = counter
	}

	a.logger = a.logger.With("run_id", a.id)
	a.emitter = NewEventEmitter(a.id, 256)
	a.transcript = NewTranscript()
	a.parser = Parser{Labels: a.config.Labels, StopTool: a.config.StopTool}
	a.window = WindowBuilder{Labels: a.config.Labels, Counter: a.counter}
	a.prompts = PromptBuilder{Labels: a.config.Labels, OutputFormat: a.config.OutputFormat, Registry: registry}
	a.dispatcher = &Dispatcher{
		Registry:    registry,
		MaxParallel: a.config.MaxParallel,
		CharLimits:  a.config.ObservationLimits,
		LineLimits:  a.config.ObservationLineLimits,
		Emitter:     a.emitter,
		Logger:      a.logger,
	}
	if a.config.SystemMessage != "" {
		a.history.Append(unifiedllm.SystemMessage(a.config.SystemMessage))
	}
	return a, nil
}

// ID returns the run identifier.
func (a *Agent) ID() string { return a.id }

// Config returns the agent's configuration.
func (a *Agent) Config() Config { return a.config }

// State returns the current controller state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = s
}

// Transcript returns the step transcript.
func (a *Agent) Transcript() *Transcript { return a.transcript }

// History returns a copy of the chat history.
func (a *Agent) History() []unifiedllm.Message { return a.history.Messages() }

// LastStep returns the newest transcript step.
func (a *Agent) LastStep() (Step, bool) { return a.transcript.Last() }

// Events returns the event channel for the host application.
func (a *Agent) Events() <-chan Event { return a.emitter.Events() }

// AddInitialStep seeds the transcript with context gathered before the run.
func (a *Agent) AddInitialStep(thought, observation string) {
	step := Step{Thought: thought}
	if observation != "" {
		step.Observations = []Observation{{Output: observation, Status: ObservationNote}}
	}
	a.transcript.Append(step)
}

// Interrupt stops the run: no further model calls or tool dispatch happen.
// Tool side effects already applied are kept.
func (a *Agent) Interrupt() {
	a.interrupted.Store(true)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// Close terminates the agent and closes the event channel.
func (a *Agent) Close() {
	a.setState(StateTerminated)
	a.emitter.Close()
}

// Run iterates until an answer is found, the ceiling is reached or the run
// is interrupted. Only a context overflow, an interrupt or cancellation of
// ctx return an error; every other failure is logged and absorbed.
func (a *Agent) Run(ctx context.Context, query string) (string, error) {
	a.mu.Lock()
	switch {
	case a.state == StateTerminated:
		a.mu.Unlock()
		return "", ErrAgentTerminated
	case a.running:
		a.mu.Unlock()
		return "", errors.New("agentloop: run already in progress")
	}
	ctx, cancel := context.WithCancel(ctx)
	a.running = true
	a.cancel = cancel
	a.mu.Unlock()

	defer func() {
		cancel()
		a.mu.Lock()
		a.running = false
		a.cancel = nil
		a.state = StateTerminated
		a.mu.Unlock()
	}()

	a.emitter.Emit(EventRunStart, map[string]any{"query": query})
	a.logger.Info("agent run started", "query", query, "max_iterations", a.config.MaxIterations)

	answer, iterations, err := a.loop(ctx, query)

	data := map[string]any{"iterations": iterations}
	if err != nil {
		data["error"] = err.Error()
		a.logger.Error("agent run failed", "iterations", iterations, "error", err)
	} else {
		data["answer"] = answer
		a.logger.Info("agent run finished", "iterations", iterations)
	}
	a.emitter.Emit(EventRunEnd, data)
	return answer, err
}

func (a *Agent) loop(ctx context.Context, query string) (string, int, error) {
	limit := a.config.MaxIterations
	forced := false
	for i := 0; i < limit; i++ {
		if err := a.stopped(ctx); err != nil {
			return "", i, err
		}
		if i == limit-1 {
			forced = true
		}

		a.setState(StateThinking)
		a.emitter.Emit(EventIterationStart, map[string]any{"iteration": i + 1, "forced": forced})
		a.logger.Info("iteration", "iteration", i+1, "forced", forced)

		step, done, err := a.iterate(ctx, query, i, forced)
		if err != nil {
			return "", i + 1, err
		}
		if done {
			answer := step.FinalAnswer
			if answer == "" {
				answer = step.Thought
			}
			a.snapshot(ctx, query, i, step, answer)
			return answer, i + 1, nil
		}
		if step == nil {
			// The completion failed; nothing to record for this iteration.
			continue
		}

		a.setState(StateDeciding)
		a.transcript.Append(*step)
		a.checkLoop()
		a.snapshot(ctx, query, i, step, "")

		if err := a.stopped(ctx); err != nil {
			return "", i + 1, err
		}
		if a.config.PauseBetween && !forced && a.feedback != nil && !a.config.pauseExempt(*step) {
			forced = a.askFeedback(ctx, *step, forced)
		}
	}
	return CouldNotFindAnswer, limit, nil
}

// iterate runs one think/act cycle. It returns done with the step holding
// the answer, a nil step when the completion failed, or the step to append.
func (a *Agent) iterate(ctx context.Context, query string, i int, forced bool) (*Step, bool, error) {
	window, err := a.window.Build(a.transcript, a.config.UnitBudget)
	if err != nil {
		a.emitter.Emit(EventError, map[string]any{"error": err.Error()})
		return nil, false, err
	}
	a.checkContextUsage(window)

	prompt := a.prompts.Build(query, window.Text, forced)
	a.logger.Debug("prompt", "iteration", i+1, "prompt", prompt)
	a.history.Append(unifiedllm.UserMessage(prompt))

	resp, err := a.client.Complete(ctx, a.request(prompt, i))
	if err != nil {
		if stopErr := a.stopped(ctx); stopErr != nil {
			return nil, false, stopErr
		}
		berr := &CompletionBackendError{Iteration: i + 1, Err: err}
		a.logger.Warn("completion failed", "iteration", i+1, "error", err)
		a.emitter.Emit(EventError, map[string]any{"error": berr.Error()})
		if forced {
			return &Step{Thought: forcedStepThought, FinalAnswer: CouldNotFindAnswer, Forced: true}, true, nil
		}
		return nil, false, nil
	}
	a.history.Append(unifiedllm.AssistantMessage(resp.Text))
	a.emitter.Emit(EventCompletion, map[string]any{
		"iteration": i + 1,
		"text":      resp.Text,
		"tokens":    resp.Usage.TotalTokens,
		"cached":    resp.Cached,
	})

	if forced {
		answer := a.parser.ParseForcedAnswer(resp.Text)
		if answer == "" {
			answer = CouldNotFindAnswer
		}
		return &Step{Thought: forcedStepThought, FinalAnswer: answer, Forced: true}, true, nil
	}

	a.setState(StateParsing)
	step, err := a.parser.Parse(resp.Text)
	if err != nil {
		a.logger.Warn("could not parse actions", "iteration", i+1, "action", step.Action, "error", err)
		a.emitter.Emit(EventParseError, map[string]any{"action": step.Action, "error": err.Error()})
	}
	if step.FinalAnswer != "" {
		return &step, true, nil
	}

	if len(step.ParsedActions) > 0 {
		a.setState(StateDispatching)
		step.Observations = a.dispatcher.Dispatch(ctx, step.ParsedActions, query)
	}

	if step.Thought != "" && !step.HasAction() {
		return &step, true, nil
	}
	return &step, false, nil
}

func (a *Agent) request(prompt string, i int) unifiedllm.Request {
	msgs := make([]unifiedllm.Message, 0, len(a.prior)+2)
	if a.config.SystemMessage != "" {
		msgs = append(msgs, unifiedllm.SystemMessage(a.config.SystemMessage))
	}
	msgs = append(msgs, a.prior...)
	msgs = append(msgs, unifiedllm.UserMessage(prompt))
	return unifiedllm.Request{
		Model:         a.config.Model,
		Provider:      a.config.Provider,
		Messages:      msgs,
		StopSequences: []string{a.prompts.StopSequence()},
		Temperature:   a.config.Temperature,
		Metadata:      map[string]string{"run_id": a.id, "iteration": strconv.Itoa(i + 1)},
	}
}

// askFeedback applies one feedback reply and returns the new forced flag.
func (a *Agent) askFeedback(ctx context.Context, last Step, forced bool) bool {
	resp, err := a.feedback.Ask(ctx, last)
	if err != nil {
		a.logger.Warn("feedback failed", "error", err)
		return forced
	}
	a.emitter.Emit(EventFeedback, map[string]any{"kind": resp.Kind.String(), "text": resp.Text})
	switch resp.Kind {
	case FeedbackForceStop:
		return true
	case FeedbackText:
		a.transcript.Append(Step{Thought: userThoughtPrefix + resp.Text, FromUser: true})
		a.history.Append(unifiedllm.UserMessage(resp.Text))
		return forced
	default:
		return false
	}
}

func (a *Agent) stopped(ctx context.Context) error {
	if a.interrupted.Load() {
		return ErrInterrupted
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("agent run cancelled: %w", err)
	}
	return nil
}

func (a *Agent) snapshot(ctx context.Context, query string, i int, step *Step, answer string) {
	if a.snapshotter == nil {
		return
	}
	snap := Snapshot{
		RunID:     a.id,
		Query:     query,
		Iteration: i + 1,
		History:   a.history.Messages(),
		Step:      step.clone(),
		Final:     answer != "",
		Answer:    answer,
	}
	// Persist the final state even when the run context was cancelled.
	if err := a.snapshotter.Snapshot(context.WithoutCancel(ctx), snap); err != nil {
		a.logger.Warn("snapshot failed", "iteration", i+1, "error", err)
	}
}

func (a *Agent) checkLoop() {
	window := a.config.LoopDetectionWindow
	if window == 0 || !DetectLoop(a.transcript, window) {
		return
	}
	msg := fmt.Sprintf("loop detected: the last %d steps repeat the same actions", window)
	a.logger.Warn(msg)
	a.emitter.Emit(EventLoopDetection, map[string]any{"message": msg})
}

// checkContextUsage warns once the context fills more than 80% of the budget.
func (a *Agent) checkContextUsage(w Window) {
	budget := a.config.UnitBudget
	if w.Units*5 <= budget*4 {
		return
	}
	pct := w.Units * 100 / budget
	a.logger.Warn("context usage high", "units", w.Units, "budget", budget, "percent", pct)
	a.emitter.Emit(EventWarning, map[string]any{
		"message": fmt.Sprintf("Context usage at ~%d%% of the unit budget", pct),
	})
}
