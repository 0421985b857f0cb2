package agentloop

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/draftloop/unifiedllm"
)

// flakyCompleter fails the calls whose index is in fail, else delegates.
type flakyCompleter struct {
	next  unifiedllm.Completer
	fail  map[int]bool
	mu    sync.Mutex
	calls int
}

func (f *flakyCompleter) Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	f.mu.Lock()
	n := f.calls
	f.calls++
	f.mu.Unlock()
	if f.fail[n] || f.fail[-1] {
		return nil, &unifiedllm.ServerError{ProviderError: unifiedllm.ProviderError{
			SDKError: unifiedllm.SDKError{Message: "overloaded"}, Provider: "fake", StatusCode: 503, Retryable: true,
		}}
	}
	return f.next.Complete(ctx, req)
}

func testRegistry(extra ...Tool) *ToolRegistry {
	tools := append([]Tool{
		{Name: "listFiles", Description: "List files", Run: func(ctx context.Context, input, goal string) (string, error) {
			return "main.go\nrouter.go", nil
		}},
		{Name: "askUser", Description: "Ask the user", Serial: true, Run: func(ctx context.Context, input, goal string) (string, error) {
			return "the router is in router.go", nil
		}},
	}, extra...)
	return MustToolRegistry(tools...)
}

func newTestAgent(t *testing.T, client unifiedllm.Completer, cfg Config, opts ...Option) *Agent {
	t.Helper()
	opts = append([]Option{WithConfig(cfg), WithUnitCounter(RuneCounter{})}, opts...)
	agent, err := New(client, testRegistry(), opts...)
	require.NoError(t, err)
	t.Cleanup(agent.Close)
	return agent
}

const actionResponse = " I should look around\nAction:\n- listFiles ."

func userPrompt(req unifiedllm.Request) string {
	return req.Messages[len(req.Messages)-1].Content
}

func TestRunFinalAnswerOnly(t *testing.T) {
	fake := unifiedllm.NewFakeAdapter(" I know this one\nFinal Answer: router.go")
	agent := newTestAgent(t, fake, DefaultConfig())

	answer, err := agent.Run(context.Background(), "where is the router?")
	require.NoError(t, err)
	assert.Equal(t, "router.go", answer)
	assert.Len(t, fake.Requests(), 1)
	assert.Equal(t, 0, agent.Transcript().Len())
	assert.Equal(t, StateTerminated, agent.State())

	history := agent.History()
	require.Len(t, history, 2)
	assert.Equal(t, unifiedllm.RoleUser, history[0].Role)
	assert.Equal(t, unifiedllm.RoleAssistant, history[1].Role)

	req := fake.Requests()[0]
	assert.Equal(t, []string{"\nObservation"}, req.StopSequences)
	assert.True(t, strings.HasSuffix(userPrompt(req), "Request: where is the router?\nThought:"))
}

func TestRunThoughtWithoutActionIsAnswer(t *testing.T) {
	fake := unifiedllm.NewFakeAdapter(" The router lives in router.go")
	agent := newTestAgent(t, fake, DefaultConfig())

	answer, err := agent.Run(context.Background(), "where is the router?")
	require.NoError(t, err)
	assert.Equal(t, "The router lives in router.go", answer)
	assert.Len(t, fake.Requests(), 1)
}

func TestRunCeilingForcesCompletion(t *testing.T) {
	fake := unifiedllm.NewFakeAdapter(actionResponse, actionResponse, actionResponse, actionResponse, " router.go\n")
	agent := newTestAgent(t, fake, DefaultConfig())

	answer, err := agent.Run(context.Background(), "where is the router?")
	require.NoError(t, err)
	assert.Equal(t, "router.go", answer)

	reqs := fake.Requests()
	require.Len(t, reqs, 5)
	for _, req := range reqs[:4] {
		assert.True(t, strings.HasSuffix(userPrompt(req), "\nThought:"))
	}
	assert.True(t, strings.HasSuffix(userPrompt(reqs[4]),
		"Thought: the user wants me to answer immediately.\nFinal Answer:"))
	assert.Contains(t, userPrompt(reqs[4]), "Observation: Ran tool listFiles with input .\nmain.go\nrouter.go")

	require.Equal(t, 4, agent.Transcript().Len())
	for _, s := range agent.Transcript().Steps() {
		require.Len(t, s.Observations, 1)
		assert.Equal(t, ObservationOK, s.Observations[0].Status)
	}
}

func TestRunForcedEmptyAnswer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 2
	fake := unifiedllm.NewFakeAdapter(actionResponse, "  \n")
	agent := newTestAgent(t, fake, cfg)

	answer, err := agent.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, CouldNotFindAnswer, answer)
}

func TestRunForceStopFeedback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PauseBetween = true
	fake := unifiedllm.NewFakeAdapter(actionResponse, "Final Answer: router.go")

	var asked int
	fb := FeedbackFunc(func(ctx context.Context, last Step) (FeedbackResponse, error) {
		asked++
		assert.Equal(t, "listFiles", last.ParsedActions[0].Tool)
		return ParseFeedback("n"), nil
	})
	agent := newTestAgent(t, fake, cfg, WithFeedback(fb))

	answer, err := agent.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "router.go", answer)
	assert.Equal(t, 1, asked)

	reqs := fake.Requests()
	require.Len(t, reqs, 2)
	assert.True(t, strings.HasSuffix(userPrompt(reqs[1]), "Final Answer:"), "iteration after force stop is forced")
}

func TestRunFeedbackTextBecomesStep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PauseBetween = true
	fake := unifiedllm.NewFakeAdapter(actionResponse, "Final Answer: done")
	fb := FeedbackFunc(func(ctx context.Context, last Step) (FeedbackResponse, error) {
		return ParseFeedback("check the cmd directory"), nil
	})
	agent := newTestAgent(t, fake, cfg, WithFeedback(fb))

	_, err := agent.Run(context.Background(), "q")
	require.NoError(t, err)

	steps := agent.Transcript().Steps()
	require.Len(t, steps, 2)
	assert.True(t, steps[1].FromUser)
	assert.Equal(t, "From user: check the cmd directory", steps[1].Thought)
	assert.Contains(t, userPrompt(fake.Requests()[1]), "Thought: From user: check the cmd directory\nThought:")

	var userTexts []string
	for _, m := range agent.History() {
		if m.Role == unifiedllm.RoleUser {
			userTexts = append(userTexts, m.Content)
		}
	}
	assert.Contains(t, userTexts, "check the cmd directory")
}

func TestRunNoPauseAfterAskUser(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PauseBetween = true
	fake := unifiedllm.NewFakeAdapter(" ask\nAction: askUser where?", "Final Answer: router.go")
	fb := FeedbackFunc(func(ctx context.Context, last Step) (FeedbackResponse, error) {
		t.Fatal("feedback must not be asked after askUser")
		return FeedbackResponse{}, nil
	})
	agent := newTestAgent(t, fake, cfg, WithFeedback(fb))

	answer, err := agent.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "router.go", answer)
}

func TestRunParseErrorContinues(t *testing.T) {
	fake := unifiedllm.NewFakeAdapter(" try\nAction:\n- listFiles .\n- \"\"", "Final Answer: ok")
	agent := newTestAgent(t, fake, DefaultConfig())

	answer, err := agent.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)

	steps := agent.Transcript().Steps()
	require.Len(t, steps, 1)
	assert.Empty(t, steps[0].Observations, "nothing is dispatched from a bad action list")
	assert.Contains(t, userPrompt(fake.Requests()[1]), "Observation: action parse error: missing tool name")
}

func TestRunBackendErrorSkipsIteration(t *testing.T) {
	client := &flakyCompleter{next: unifiedllm.NewFakeAdapter("Final Answer: recovered"), fail: map[int]bool{0: true}}
	agent := newTestAgent(t, client, DefaultConfig())

	answer, err := agent.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)
	assert.Equal(t, 2, client.calls)
	assert.Equal(t, 0, agent.Transcript().Len())
}

func TestRunBackendAlwaysFailing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	client := &flakyCompleter{next: unifiedllm.NewFakeAdapter(), fail: map[int]bool{-1: true}}
	agent := newTestAgent(t, client, cfg)

	answer, err := agent.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, CouldNotFindAnswer, answer)
	assert.Equal(t, 3, client.calls)
}

func TestRunContextOverflowIsFatal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UnitBudget = 50
	fake := unifiedllm.NewFakeAdapter()
	agent := newTestAgent(t, fake, cfg)
	agent.AddInitialStep("background", strings.Repeat("x", 200))

	_, err := agent.Run(context.Background(), "q")
	var overflow *ContextOverflowError
	require.True(t, errors.As(err, &overflow))
	assert.Empty(t, fake.Requests())
}

func TestRunInitialStepIsRendered(t *testing.T) {
	fake := unifiedllm.NewFakeAdapter("Final Answer: ok")
	agent := newTestAgent(t, fake, DefaultConfig())
	agent.AddInitialStep("I looked at the repo", "it is a Go module")

	_, err := agent.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Contains(t, userPrompt(fake.Requests()[0]), "Thought: I looked at the repo\nObservation: it is a Go module\nThought:")
}

func TestRunInterrupt(t *testing.T) {
	fake := unifiedllm.NewFakeAdapter(" stop\nAction:\n- stopper now\n- listFiles .", "Final Answer: never")
	var agent *Agent
	stopper := Tool{Name: "stopper", Serial: true, Run: func(ctx context.Context, input, goal string) (string, error) {
		agent.Interrupt()
		return "interrupted", nil
	}}
	agent, err := New(fake, testRegistry(stopper), WithUnitCounter(RuneCounter{}))
	require.NoError(t, err)
	defer agent.Close()

	_, err = agent.Run(context.Background(), "q")
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Len(t, fake.Requests(), 1, "no model call after an interrupt")

	last, ok := agent.LastStep()
	require.True(t, ok)
	require.Len(t, last.Observations, 2)
	assert.Equal(t, ObservationOK, last.Observations[0].Status)
	assert.Equal(t, ObservationSkipped, last.Observations[1].Status, "parallel batch is not started")
}

func TestRunCancelledContext(t *testing.T) {
	agent := newTestAgent(t, unifiedllm.NewFakeAdapter(), DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := agent.Run(ctx, "q")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunOnlyOnce(t *testing.T) {
	agent := newTestAgent(t, unifiedllm.NewFakeAdapter("Final Answer: a"), DefaultConfig())
	_, err := agent.Run(context.Background(), "q")
	require.NoError(t, err)

	_, err = agent.Run(context.Background(), "again")
	assert.ErrorIs(t, err, ErrAgentTerminated)
}

func TestRunSnapshots(t *testing.T) {
	var snaps []Snapshot
	snapper := SnapshotFunc(func(ctx context.Context, snap Snapshot) error {
		snaps = append(snaps, snap)
		return errors.New("disk full")
	})
	fake := unifiedllm.NewFakeAdapter(actionResponse, "Final Answer: router.go")
	agent := newTestAgent(t, fake, DefaultConfig(), WithSnapshotter(snapper), WithRunID("run-1"))

	answer, err := agent.Run(context.Background(), "q")
	require.NoError(t, err, "snapshot errors never stop a run")
	assert.Equal(t, "router.go", answer)

	require.Len(t, snaps, 2)
	assert.Equal(t, "run-1", snaps[0].RunID)
	assert.Equal(t, 1, snaps[0].Iteration)
	assert.False(t, snaps[0].Final)
	assert.Len(t, snaps[0].Step.Observations, 1)
	assert.Len(t, snaps[0].History, 2)

	assert.True(t, snaps[1].Final)
	assert.Equal(t, "router.go", snaps[1].Answer)
	assert.Len(t, snaps[1].History, 4)
}

func TestRunSystemAndPriorMessages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SystemMessage = "You are a planner."
	cfg.Model = "4"
	fake := unifiedllm.NewFakeAdapter("Final Answer: ok")
	agent := newTestAgent(t, fake, cfg, WithPriorMessages(unifiedllm.UserMessage("earlier context")))

	_, err := agent.Run(context.Background(), "q")
	require.NoError(t, err)

	req := fake.Requests()[0]
	require.Len(t, req.Messages, 3)
	assert.Equal(t, unifiedllm.SystemMessage("You are a planner."), req.Messages[0])
	assert.Equal(t, "earlier context", req.Messages[1].Content)
	assert.Equal(t, "4", req.Model)
	assert.Equal(t, agent.ID(), req.Metadata["run_id"])

	history := agent.History()
	assert.Equal(t, unifiedllm.RoleSystem, history[0].Role)
}

func TestRunEvents(t *testing.T) {
	fake := unifiedllm.NewFakeAdapter(actionResponse, "Final Answer: ok")
	agent := newTestAgent(t, fake, DefaultConfig())

	_, err := agent.Run(context.Background(), "q")
	require.NoError(t, err)
	agent.Close()

	var kinds []EventKind
	for ev := range agent.Events() {
		assert.Equal(t, agent.ID(), ev.RunID)
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{
		EventRunStart,
		EventIterationStart, EventCompletion, EventToolCallStart, EventToolCallEnd,
		EventIterationStart, EventCompletion,
		EventRunEnd,
	}, kinds)
}

func TestRunLoopDetection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoopDetectionWindow = 2
	cfg.MaxIterations = 3
	fake := unifiedllm.NewFakeAdapter(actionResponse, actionResponse, "done")
	agent := newTestAgent(t, fake, cfg)

	_, err := agent.Run(context.Background(), "q")
	require.NoError(t, err)
	agent.Close()

	found := false
	for ev := range agent.Events() {
		found = found || ev.Kind == EventLoopDetection
	}
	assert.True(t, found)
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.MaxIterations = 0
	_, err = New(unifiedllm.NewFakeAdapter(), nil, WithConfig(cfg))
	assert.Error(t, err)

	agent, err := New(unifiedllm.NewFakeAdapter(), nil, WithLogger(nil))
	require.NoError(t, err)
	assert.Equal(t, StateIdle, agent.State())
	assert.NotEmpty(t, agent.ID())
}
