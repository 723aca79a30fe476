// Package dispatch implements process dispatch (§4.6): when a task
// carries a prefix command, its body runs as a child process instead
// of in-process. The prefix string is split by POSIX word rules (via
// mattn/go-shellwords, the same tokenizer the teacher's prefix-command
// aware plugins rely on for shell-like argument splitting) rather than
// handed to a shell, so the prefix's own quoting is honoured but no
// shell metacharacter interpretation happens beyond that.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

// Request describes one child-process dispatch.
type Request struct {
	PrefixCommand string // e.g. "srun --gpus=1", "/bin/env"
	SelfPath      string // os.Args[0], or an explicit CLI path
	TaskName      string
	TaskID        string
	CachePath     string
	Stdout        io.Writer
	Stderr        io.Writer
	StderrLog     string // path surfaced in FailedError on a non-zero exit
}

// FailedError reports a non-zero child exit, per §4.6's "non-zero exit
// is a task failure whose cause is 'subprocess exited with status N'".
type FailedError struct {
	TaskName  string
	TaskID    string
	ExitCode  int
	StderrLog string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("dispatch: subprocess for %s/%s exited with status %d; see stderr at %s",
		e.TaskName, e.TaskID, e.ExitCode, e.StderrLog)
}

// Run tokenizes req.PrefixCommand, appends the self-invocation
// exec-task subcommand and its flags, and runs the child to
// completion, streaming stdout/stderr to the cache entry's log files.
// The child is responsible for populating the cache entry before
// exiting 0; Run itself never touches the cache.
func Run(ctx context.Context, req Request) error {
	parser := shellwords.NewParser()
	prefixTokens, err := parser.Parse(req.PrefixCommand)
	if err != nil {
		return fmt.Errorf("dispatch: parse prefix command %q: %w", req.PrefixCommand, err)
	}
	if len(prefixTokens) == 0 {
		return fmt.Errorf("dispatch: empty prefix command")
	}

	args := append([]string{}, prefixTokens[1:]...)
	args = append(args, req.SelfPath, "exec-task",
		"--task-name", req.TaskName,
		"--task-id", req.TaskID,
		"--cache", req.CachePath,
	)

	cmd := exec.CommandContext(ctx, prefixTokens[0], args...)
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		return &FailedError{
			TaskName:  req.TaskName,
			TaskID:    req.TaskID,
			ExitCode:  exitCode,
			StderrLog: req.StderrLog,
		}
	}
	return nil
}
