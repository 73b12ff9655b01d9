// SPDX-License-Identifier: AGPL-3.0-or-later

package parallel

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// LocalExecutor runs commands in-process with /bin/sh -c rather than over
// SSH, for an Engine whose Host names the driver's own machine.
type LocalExecutor struct{}

// Run implements CommandExecutor locally.
func (LocalExecutor) Run(ctx context.Context, _ Engine, command string) (string, string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stdout, stderr outputBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

type outputBuffer struct {
	data []byte
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *outputBuffer) String() string {
	return string(b.data)
}

// WatchLocalProcess is the local-engine analogue of WatchdogScript: when
// an Engine's copier runs on the driver's own machine (no SSH hop to
// shell a `ps`/`kill -0` loop across), the dispatcher instead polls the
// spawned task's PID directly with gopsutil/v4/process, the same
// PID-liveness idiom used for remote-worker reaping in
// adest-aes-scripts' tcpo kill command. Once the process has exited,
// onExit runs (normally scratch-directory cleanup).
//
// WatchLocalProcess blocks until the PID disappears or ctx is canceled;
// call it from its own goroutine.
func WatchLocalProcess(ctx context.Context, pid int, pollInterval time.Duration, onExit func()) {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			alive, err := process.PidExists(int32(pid))
			if err != nil || !alive {
				onExit()
				return
			}
		}
	}
}

// StartTracked launches command locally and returns its PID alongside
// the running *exec.Cmd, so a caller can pair it with WatchLocalProcess.
func StartTracked(ctx context.Context, command string) (*exec.Cmd, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, 0, err
	}
	return cmd, cmd.Process.Pid, nil
}
