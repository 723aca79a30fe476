package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskgraph/engine/internal/cachescope"
	"github.com/taskgraph/engine/internal/cachestore"
	"github.com/taskgraph/engine/internal/codec"
	"github.com/taskgraph/engine/internal/compress"
	"github.com/taskgraph/engine/internal/registry"
)

var (
	execTaskName  string
	execTaskID    string
	execCachePath string
)

// pendingTask mirrors internal/scheduler's unexported envelope type:
// the metadata WritePending stores so a subprocess dispatch can
// reconstruct and persist its task without access to the parent's
// in-memory graph (§4.6).
type pendingTask struct {
	CompressLevel int             `json:"compress_level"`
	ArgsJSON      json.RawMessage `json:"args_json"`
}

// execTaskCmd is the self-invocation target a prefix command wraps
// (internal/dispatch.Run): `<prefix> <self> exec-task --task-name T
// --task-id I --cache <path>`. It looks the task up in
// internal/registry, runs its body via the registered Reconstructor,
// and persists the result through the same cache store the parent
// scheduler reads from — after this exits 0 the parent's Load call
// simply sees a newly completed entry.
var execTaskCmd = &cobra.Command{
	Use:    "exec-task",
	Short:  "Reconstruct and run one task out-of-process (internal, used by prefix dispatch)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if execTaskName == "" || execTaskID == "" || execCachePath == "" {
			return fmt.Errorf("exec-task: --task-name, --task-id, and --cache are required")
		}
		ctx := cmd.Context()

		store, err := cachestore.Open(execCachePath, processMeter())
		if err != nil {
			return fmt.Errorf("exec-task: open cache: %w", err)
		}
		defer store.Close()

		// A reconstructed task module may call back into taskgraph.NewTask
		// (e.g. to rebuild its own upstream tasks for identity purposes),
		// which requires an active cache scope in ctx just as the parent
		// process's construction did.
		ctx, _ = cachescope.Open(ctx, execCachePath, store)

		reconstruct, ok := registry.Lookup(execTaskName)
		if !ok {
			return fmt.Errorf("exec-task: no task registered under task_name %q", execTaskName)
		}

		pendingBytes, err := store.ReadPending(execTaskName, execTaskID)
		if err != nil {
			return fmt.Errorf("exec-task: read pending task metadata: %w", err)
		}
		var pending pendingTask
		if err := json.Unmarshal(pendingBytes, &pending); err != nil {
			return fmt.Errorf("exec-task: parse pending task metadata: %w", err)
		}

		valueCodec := codec.JSON{}
		loadUpstream := func(ctx context.Context, taskName, taskID string) (any, error) {
			raw, meta, err := store.Load(ctx, taskName, taskID)
			if err != nil {
				return nil, err
			}
			if meta.CompressLevel > 0 {
				raw, err = compress.Zstd{}.Decompress(raw)
				if err != nil {
					return nil, err
				}
			}
			var v any
			if err := valueCodec.Decode(raw, &v); err != nil {
				return nil, fmt.Errorf("exec-task: decode upstream %s/%s: %w", taskName, taskID, err)
			}
			return v, nil
		}

		val, err := reconstruct(ctx, pending.ArgsJSON, loadUpstream)
		if err != nil {
			return fmt.Errorf("exec-task: task body failed: %w", err)
		}

		rawOut, err := valueCodec.Encode(val)
		if err != nil {
			return fmt.Errorf("exec-task: encode result: %w", err)
		}
		if pending.CompressLevel > 0 {
			rawOut, err = compress.Zstd{}.Compress(pending.CompressLevel, rawOut)
			if err != nil {
				return fmt.Errorf("exec-task: compress result: %w", err)
			}
		}
		return store.Store(ctx, execTaskName, execTaskID, rawOut, cachestore.Meta{
			CodecTag:      valueCodec.Tag(),
			CompressLevel: pending.CompressLevel,
			CreatedAt:     time.Now(),
			ArgsJSON:      pending.ArgsJSON,
		})
	},
}

func init() {
	execTaskCmd.Flags().StringVar(&execTaskName, "task-name", "", "task type to reconstruct")
	execTaskCmd.Flags().StringVar(&execTaskID, "task-id", "", "task id to reconstruct")
	execTaskCmd.Flags().StringVar(&execCachePath, "cache", "", "cache store root directory")
}
