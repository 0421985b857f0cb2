// Command draftloop runs a tool-using agent against the current directory.
package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	logLevel string
	logFile  string
	workdir  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:          "draftloop",
		Short:        "draftloop: think, act and observe until there is an answer",
		Long:         "Runs a language model in a thought/action/observation loop with tools scoped to a working directory.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&g.logFile, "log-file", "", "also append logs to this file")
	root.PersistentFlags().StringVar(&g.workdir, "workdir", "", "directory the tools operate in (default: current directory)")

	root.AddCommand(
		runCmd(g),
		toolsCmd(g),
		modelsCmd(),
		runsCmd(g),
		historyCmd(g),
	)
	return root
}

// within resolves a relative path against the working directory.
func within(workdir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workdir, path)
}
