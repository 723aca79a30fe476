package main

import (
	"github.com/spf13/cobra"
)

// Global flag variables, following cmd/aleutian's package-level flag
// variable convention (commands.go) rather than cobra's per-command
// closures over local state.
var (
	flagConfig   string
	flagCache    string
	flagWorkers  int
	flagSelfPath string
)

var rootCmd = &cobra.Command{
	Use:   "taskgraph",
	Short: "Run and inspect task-graph executions backed by a content-addressed cache",
	Long: `taskgraph builds and runs the task graph registered by a user's
task module against a durable, content-addressed cache: tasks are
recomputed only when their canonical arguments change, and a run that
fails after partial progress leaves every already-completed task's
cache entry intact for the next attempt.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a YAML engine config file (optional)")
	rootCmd.PersistentFlags().StringVar(&flagCache, "cache", "", "cache store root directory (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagWorkers, "workers", 0, "in-process executor worker count (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagSelfPath, "self", "", "executable path used for subprocess self-invocation (defaults to os.Args[0])")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(clearAllCmd)
	rootCmd.AddCommand(execTaskCmd)
}
