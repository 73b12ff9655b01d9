// SPDX-License-Identifier: AGPL-3.0-or-later

package parallel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalExecutor_RunCapturesOutput(t *testing.T) {
	exec := LocalExecutor{}
	stdout, _, err := exec.Run(context.Background(), Engine{ID: "local"}, "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", stdout)
}

func TestLocalExecutor_RunPropagatesFailure(t *testing.T) {
	exec := LocalExecutor{}
	_, _, err := exec.Run(context.Background(), Engine{ID: "local"}, "false")
	assert.Error(t, err)
}

func TestWatchLocalProcess_FiresOnExitAfterProcessDies(t *testing.T) {
	cmd, pid, err := StartTracked(context.Background(), "sleep 0.05")
	require.NoError(t, err)

	done := make(chan struct{})
	go WatchLocalProcess(context.Background(), pid, 20*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onExit was never called")
	}

	_ = cmd.Wait()
}

func TestWatchLocalProcess_StopsOnContextCancel(t *testing.T) {
	cmd, pid, err := StartTracked(context.Background(), "sleep 5")
	require.NoError(t, err)
	defer func() { _ = cmd.Process.Kill() }()

	ctx, cancel := context.WithCancel(context.Background())
	fired := make(chan struct{})
	go func() {
		WatchLocalProcess(ctx, pid, 20*time.Millisecond, func() { close(fired) })
	}()

	cancel()
	select {
	case <-fired:
		t.Fatal("onExit should not fire when context is canceled while process is alive")
	case <-time.After(100 * time.Millisecond):
	}
}
