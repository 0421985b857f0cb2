package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/martinemde/draftloop/agentloop"
	"github.com/martinemde/draftloop/store"
	"github.com/martinemde/draftloop/tools"
	"github.com/martinemde/draftloop/unifiedllm"
	"github.com/spf13/cobra"
)

const defaultDBPath = ".draftloop/runs.db"

func toolsCmd(g *globalOptions) *cobra.Command {
	var readOnly bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := tools.NewEnvironment(g.workdir)
			if err != nil {
				return err
			}
			set := tools.All(env, tools.StaticPrompter{}, tools.Editor{})
			if readOnly {
				set = tools.ReadOnly(env, tools.StaticPrompter{})
			}
			registry, err := agentloop.NewToolRegistry(set...)
			if err != nil {
				return err
			}
			return printTools(cmd.OutOrStdout(), registry)
		},
	}
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "only list tools that do not modify files")
	return cmd
}

func printTools(w io.Writer, registry *agentloop.ToolRegistry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMODE\tDESCRIPTION")
	for _, t := range registry.Tools() {
		mode := "parallel"
		if t.Serial {
			mode = "serial"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, mode, t.Description)
	}
	return tw.Flush()
}

func modelsCmd() *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models in the built-in catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printModels(cmd.OutOrStdout(), unifiedllm.ListModels(provider))
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "only list models of this provider")
	return cmd
}

func printModels(w io.Writer, models []unifiedllm.ModelInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROVIDER\tCONTEXT\tALIASES")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", m.ID, m.Provider, m.ContextWindow, strings.Join(m.Aliases, ", "))
	}
	return tw.Flush()
}

func runsCmd(g *globalOptions) *cobra.Command {
	var (
		db    string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := tools.NewEnvironment(g.workdir)
			if err != nil {
				return err
			}
			s, err := openRunsDB(within(env.WorkingDirectory(), db), false)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().StringVar(&db, "db", defaultDBPath, "SQLite database written by run --db")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list; 0 lists all")
	return cmd
}

// openRunsDB opens the runs database. Readers get an error for a missing
// file instead of an empty new database.
func openRunsDB(path string, create bool) (*store.SQLiteStore, error) {
	if create {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no runs database at %s: %w", path, err)
	}
	return store.OpenSQLite(path)
}

func printRuns(w io.Writer, runs []*store.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUPDATED\tITERATIONS\tQUERY\tANSWER")
	for _, r := range runs {
		answer := "-"
		if r.Final {
			answer = oneLine(r.Answer, 60)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.UpdatedAt.Local().Format("2006-01-02 15:04"), r.Iterations, oneLine(r.Query, 40), answer)
	}
	return tw.Flush()
}

// oneLine flattens s and cuts it to at most n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}

func historyCmd(g *globalOptions) *cobra.Command {
	var db, history string
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Print the chat history of a run",
		Long:  "Without a run id, prints the history file of the last run. With one, reads it from the runs database.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := tools.NewEnvironment(g.workdir)
			if err != nil {
				return err
			}

			var messages []unifiedllm.Message
			if len(args) == 1 {
				s, err := openRunsDB(within(env.WorkingDirectory(), db), false)
				if err != nil {
					return err
				}
				defer s.Close()
				if messages, err = s.LoadHistory(cmd.Context(), args[0]); err != nil {
					return err
				}
			} else {
				path := within(env.WorkingDirectory(), history)
				if messages, err = store.NewJSONFileStore(path).LoadHistory(); err != nil {
					return err
				}
				if messages == nil {
					return fmt.Errorf("no history at %s", path)
				}
			}
			_, err = io.WriteString(cmd.OutOrStdout(), unifiedllm.FormatTranscript(messages)+"\n")
			return err
		},
	}
	cmd.Flags().StringVar(&db, "db", defaultDBPath, "SQLite database written by run --db")
	cmd.Flags().StringVar(&history, "history", store.DefaultHistoryPath, "history file written by run")
	return cmd
}
