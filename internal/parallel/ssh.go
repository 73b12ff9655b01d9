// SPDX-License-Identifier: AGPL-3.0-or-later

package parallel

import (
	"context"
	"fmt"

	"railrna/pkg/executil"
)

// SSHExecutor implements CommandExecutor using SSH, grounded directly on
// the teacher's internal/infra/bootstrap.SSHExecutor: it shells out to the
// local ssh(1) binary via executil.Runner rather than an in-process SSH
// client, so the same subprocess abstraction used everywhere else covers
// remote execution too.
type SSHExecutor struct {
	runner executil.Runner
}

// NewSSHExecutor builds an SSHExecutor. If runner is nil, a default
// executil.Runner is used.
func NewSSHExecutor(runner executil.Runner) *SSHExecutor {
	if runner == nil {
		runner = executil.NewRunner()
	}
	return &SSHExecutor{runner: runner}
}

// Run executes command on engine's host over ssh -o BatchMode=yes.
func (e *SSHExecutor) Run(ctx context.Context, engine Engine, command string) (string, string, error) {
	if engine.Host == "" {
		return "", "", fmt.Errorf("missing host for engine %q", engine.ID)
	}

	user := engine.SSHUser
	if user == "" {
		user = "root"
	}
	target := fmt.Sprintf("%s@%s", user, engine.Host)

	args := []string{
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=no",
		target,
		command,
	}

	result, err := e.runner.Run(ctx, executil.NewCommand("ssh", args...))
	if err != nil {
		if result != nil {
			return string(result.Stdout), string(result.Stderr), fmt.Errorf("ssh to %s failed: %w", target, err)
		}
		return "", "", fmt.Errorf("ssh to %s failed: %w", target, err)
	}
	return string(result.Stdout), string(result.Stderr), nil
}
