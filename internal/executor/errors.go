// SPDX-License-Identifier: AGPL-3.0-or-later

package executor

import (
	"errors"
	"fmt"
	"os/exec"
)

// TaskError reports the failure of a single mapper or reducer task: which
// step and task index it was, the process's exit code if one is
// available, and a bounded tail of what the task wrote (mapper/reducer
// output and stderr are merged onto one stream, spec.md §4.4).
type TaskError struct {
	Step       string
	TaskIndex  int
	ExitCode   int
	StderrTail string
	Err        error
}

func (e *TaskError) Error() string {
	if e.StderrTail == "" {
		return fmt.Sprintf("task %d of step %q exited %d: %v", e.TaskIndex, e.Step, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("task %d of step %q exited %d: %v\n--- output tail ---\n%s", e.TaskIndex, e.Step, e.ExitCode, e.Err, e.StderrTail)
}

func (e *TaskError) Unwrap() error { return e.Err }

// StepError reports a Step that could not complete: the last TaskError
// that caused the phase to give up, once retries under
// Options.MaxTaskAttempts are exhausted.
type StepError struct {
	Step string
	Err  *TaskError
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("step %q failed", e.Step)
	}
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}

// asStepError wraps err as a StepError for step, pulling out the
// underlying TaskError when the phase failure traces back to one (the
// common case); otherwise the StepError carries no TaskError and Error()
// falls back to wrapping err directly.
func asStepError(step string, err error) *StepError {
	if err == nil {
		return nil
	}
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return &StepError{Step: step, Err: taskErr}
	}
	return &StepError{Step: step, Err: &TaskError{Step: step, Err: err}}
}

// exitCodeOf extracts the process exit code from err, or -1 if err did
// not come from a process exit (e.g. the binary was never found).
func exitCodeOf(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
