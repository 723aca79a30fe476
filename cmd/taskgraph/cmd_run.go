package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/taskgraph/engine"
	"github.com/taskgraph/engine/internal/registry"
)

var (
	runTask   string
	runKwargs string
)

// runCmd is the CLI's `run` subcommand, the minimum surface §9's CLI
// collaborator note requires: instantiate a root task from a JSON
// kwargs blob and run it to completion.
//
// Examples:
//
//	taskgraph run --task choose --kwargs '{"n":6,"k":3}'
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a registered root task to completion",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runTask == "" {
			return fmt.Errorf("run: --task is required")
		}
		builder, ok := registry.LookupRoot(runTask)
		if !ok {
			return fmt.Errorf("run: no root task registered under %q", runTask)
		}

		ctx, scope, err := openScope(cmd.Context())
		if err != nil {
			return err
		}
		defer scope.Close()

		root, err := builder(ctx, []byte(runKwargs))
		if err != nil {
			return fmt.Errorf("run: build root task %q: %w", runTask, err)
		}

		runID := uuid.NewString()
		val, stats, err := taskgraph.RunNode(ctx, scope, root)
		if err != nil {
			return fmt.Errorf("run: %s: %w", runID, err)
		}

		out := struct {
			RunID  string          `json:"run_id"`
			Result any             `json:"result"`
			Stats  taskgraph.Stats `json:"stats"`
		}{RunID: runID, Result: val, Stats: stats}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	runCmd.Flags().StringVar(&runTask, "task", "", "name a root task was registered under (registry.RegisterRoot)")
	runCmd.Flags().StringVar(&runKwargs, "kwargs", "{}", "JSON object passed to the root task's builder")
}
