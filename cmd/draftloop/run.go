package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/martinemde/draftloop/agentloop"
	"github.com/martinemde/draftloop/store"
	"github.com/martinemde/draftloop/tools"
	"github.com/martinemde/draftloop/unifiedllm"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type runOptions struct {
	config   string
	provider string
	model    string
	limit    int
	budget   int
	pause    bool
	readOnly bool
	history  string
	db       string
	client   clientOptions
}

func runCmd(g *globalOptions) *cobra.Command {
	return newRunCmd(g, &runOptions{})
}

func newRunCmd(g *globalOptions, o *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Run the agent until it answers the query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd, g, o, strings.Join(args, " "))
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.config, "config", "", "YAML config file")
	f.StringVar(&o.provider, "provider", "", "completion provider (openai, anthropic)")
	f.StringVar(&o.model, "model", "", "model name or alias (3.5, 4, sonnet)")
	f.IntVar(&o.limit, "limit", 0, "maximum iterations; the last one forces an answer")
	f.IntVar(&o.budget, "budget", 0, "context budget in units")
	f.BoolVar(&o.pause, "pause", false, "ask for feedback between iterations")
	f.BoolVar(&o.readOnly, "read-only", false, "only offer tools that do not modify files")
	f.StringVar(&o.history, "history", store.DefaultHistoryPath, "write the chat history JSON here; empty disables")
	f.StringVar(&o.db, "db", "", "record runs in this SQLite database, e.g. "+defaultDBPath)
	f.BoolVar(&o.client.fake, "fake", false, "use the offline fake model")
	f.BoolVar(&o.client.cache, "cache", false, "cache completions in memory")
	f.StringVar(&o.client.redisURL, "redis", "", "cache completions in Redis at this URL")
	f.StringVar(&o.client.transcripts, "transcripts", "", "write each request and response to this directory")
	return cmd
}

// runConfig loads the config file, if any, and applies flags that were set
// explicitly on the command line.
func runConfig(cmd *cobra.Command, o *runOptions) (agentloop.Config, error) {
	cfg := agentloop.DefaultConfig()
	if o.config != "" {
		var err error
		if cfg, err = agentloop.LoadConfig(o.config); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("limit") {
		cfg.MaxIterations = o.limit
	}
	if flags.Changed("budget") {
		cfg.UnitBudget = o.budget
	}
	if flags.Changed("pause") {
		cfg.PauseBetween = o.pause
	}
	if flags.Changed("provider") {
		cfg.Provider = o.provider
	}
	if flags.Changed("model") {
		cfg.Model = o.model
	}
	if o.client.fake {
		cfg.Provider = "fake"
	}
	if cfg.Model == "" {
		cfg.Model = unifiedllm.DefaultModel
	}
	cfg.Model = unifiedllm.ResolveModel(cfg.Model)
	return cfg, cfg.Validate()
}

func runAgent(cmd *cobra.Command, g *globalOptions, o *runOptions, query string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	logger, closeLog, err := newLogger(g.logLevel, g.logFile, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := runConfig(cmd, o)
	if err != nil {
		return err
	}
	env, err := tools.NewEnvironment(g.workdir)
	if err != nil {
		return err
	}

	// The prompter and the feedback pause read the same input.
	in := bufio.NewReader(cmd.InOrStdin())
	interactive := isTerminal(cmd.InOrStdin())
	var prompter tools.Prompter = tools.StaticPrompter{}
	if interactive {
		prompter = tools.NewReaderPrompter(in, cmd.ErrOrStderr())
	}

	client, closeClient, err := buildClient(ctx, o.client, cfg.Model, logger)
	if err != nil {
		return err
	}
	defer closeClient()

	toolSet := tools.All(env, prompter, tools.Editor{Client: client, Provider: cfg.Provider, Model: cfg.Model})
	if o.readOnly {
		toolSet = tools.ReadOnly(env, prompter)
	}
	registry, err := agentloop.NewToolRegistry(toolSet...)
	if err != nil {
		return err
	}

	if cfg.SystemMessage == "" {
		cfg.SystemMessage = tools.SystemContext(ctx, env, cfg.Model)
	}

	opts := []agentloop.Option{agentloop.WithConfig(cfg), agentloop.WithLogger(logger)}
	if cfg.PauseBetween {
		if interactive {
			opts = append(opts, agentloop.WithFeedback(agentloop.NewReaderFeedback(in, cmd.ErrOrStderr())))
		} else {
			logger.Warn("input is not a terminal, running without pauses")
		}
	}

	snapshotter, closeStores, err := openSnapshotters(env.WorkingDirectory(), o)
	if err != nil {
		return err
	}
	defer closeStores()
	if snapshotter != nil {
		opts = append(opts, agentloop.WithSnapshotter(snapshotter))
	}

	agent, err := agentloop.New(client, registry, opts...)
	if err != nil {
		return err
	}
	defer agent.Close()
	go logEvents(agent.Events(), logger)

	answer, err := agent.Run(ctx, query)
	if err != nil {
		return fmt.Errorf("run %s: %w", agent.ID(), err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}

// openSnapshotters opens the stores selected by flags. The result is nil
// when persistence is disabled.
func openSnapshotters(workdir string, o *runOptions) (agentloop.Snapshotter, func(), error) {
	var writers []agentloop.Snapshotter
	closeFn := func() {}

	if o.history != "" {
		writers = append(writers, store.NewJSONFileStore(within(workdir, o.history)))
	}
	if o.db != "" {
		db, err := openRunsDB(within(workdir, o.db), true)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, db)
		closeFn = func() { db.Close() }
	}

	switch len(writers) {
	case 0:
		return nil, closeFn, nil
	case 1:
		return writers[0], closeFn, nil
	}
	return agentloop.MultiSnapshotter(writers...), closeFn, nil
}

// logEvents mirrors the agent's event stream into debug logs until the
// agent is closed.
func logEvents(events <-chan agentloop.Event, logger *slog.Logger) {
	for ev := range events {
		if !logger.Enabled(context.Background(), slog.LevelDebug) {
			continue
		}
		args := []any{"kind", ev.Kind}
		for k, v := range ev.Data {
			args = append(args, k, v)
		}
		logger.Debug("event", args...)
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
