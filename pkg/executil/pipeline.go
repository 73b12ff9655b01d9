// SPDX-License-Identifier: AGPL-3.0-or-later

package executil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
)

// Stage is one process in a Chain: a command whose stdin reads the
// previous stage's stdout and whose stdout feeds the next stage.
type Stage struct {
	Cmd Command
	// Name identifies the stage in error messages (e.g. "mapper", "sort", "reducer").
	Name string
}

// ChainResult carries the exit outcome of a single stage within a Chain.
type ChainResult struct {
	Name     string
	ExitCode int
	Stderr   []byte
}

// Chain runs a sequence of Stages connected by OS pipes: stage i's stdout
// is stage i+1's stdin. The first stage reads from in (if non-nil) and the
// last stage writes to out, so a mapper | sort | reducer chain runs with
// no in-memory buffering between stages. internal/executor does not use
// Chain: it runs each phase as its own process over scratch files.
//
// Chain waits for every stage and returns the first stage to fail (by
// pipeline position); callers inspect the returned []ChainResult for the
// stderr tail of each stage regardless of success.
func Chain(ctx context.Context, stages []Stage, in io.Reader, out io.Writer) ([]ChainResult, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("executil: chain requires at least one stage")
	}

	cmds := make([]*exec.Cmd, len(stages))
	stderrs := make([]bytes.Buffer, len(stages))

	for i, st := range stages {
		//nolint:gosec // stages are constructed by the pipeline compiler, not raw user input
		cmd := exec.CommandContext(ctx, st.Cmd.Name, st.Cmd.Args...)
		if st.Cmd.Dir != "" {
			cmd.Dir = st.Cmd.Dir
		}
		if len(st.Cmd.Env) > 0 {
			cmd.Env = mergeEnv(st.Cmd.Env)
		}
		cmd.Stderr = &stderrs[i]
		cmds[i] = cmd
	}

	if in != nil {
		cmds[0].Stdin = in
	}
	cmds[len(cmds)-1].Stdout = out

	for i := 0; i < len(cmds)-1; i++ {
		pipe, err := cmds[i].StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("wiring %s -> %s: %w", stages[i].Name, stages[i+1].Name, err)
		}
		cmds[i+1].Stdin = pipe
	}

	for i, cmd := range cmds {
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("starting stage %q: %w", stages[i].Name, err)
		}
	}

	results := make([]ChainResult, len(cmds))
	var firstErr error
	for i, cmd := range cmds {
		err := cmd.Wait()
		results[i] = ChainResult{
			Name:     stages[i].Name,
			ExitCode: cmd.ProcessState.ExitCode(),
			Stderr:   stderrs[i].Bytes(),
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stage %q: %w", stages[i].Name, err)
		}
	}

	return results, firstErr
}
