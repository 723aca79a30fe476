package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	clearTaskName string
	clearTaskID   string
)

// clearCmd drops exactly one cache entry, per §8's "clear_task on one
// instance removes exactly that entry; neighbours ... remain".
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop one task's cache entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		if clearTaskName == "" || clearTaskID == "" {
			return fmt.Errorf("clear: --task-name and --task-id are required")
		}
		_, scope, err := openScope(cmd.Context())
		if err != nil {
			return err
		}
		defer scope.Close()
		if err := scope.Clear(clearTaskName, clearTaskID); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		fmt.Printf("cleared %s/%s\n", clearTaskName, clearTaskID)
		return nil
	},
}

var clearAllTaskName string

// clearAllCmd drops every cache entry for a task type, per §8's
// "clear_all_tasks on a type removes all of its entries".
var clearAllCmd = &cobra.Command{
	Use:   "clear-all",
	Short: "Drop every cache entry for a task type",
	RunE: func(cmd *cobra.Command, args []string) error {
		if clearAllTaskName == "" {
			return fmt.Errorf("clear-all: --task-name is required")
		}
		_, scope, err := openScope(cmd.Context())
		if err != nil {
			return err
		}
		defer scope.Close()
		if err := scope.ClearAll(clearAllTaskName); err != nil {
			return fmt.Errorf("clear-all: %w", err)
		}
		fmt.Printf("cleared all entries for %s\n", clearAllTaskName)
		return nil
	},
}

func init() {
	clearCmd.Flags().StringVar(&clearTaskName, "task-name", "", "task type to clear an entry for")
	clearCmd.Flags().StringVar(&clearTaskID, "task-id", "", "task id to clear")
	clearAllCmd.Flags().StringVar(&clearAllTaskName, "task-name", "", "task type to clear every entry for")
}
