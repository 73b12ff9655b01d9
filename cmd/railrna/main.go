// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"railrna/internal/cli"
	"railrna/internal/cli/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCommand()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Centralize exit code handling here rather than letting Cobra
		// print its own usage/error twice.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a command error to spec.md §6's exit codes: 130 for a
// run cancelled by signal, 2 for an execution failure, 1 for everything
// else (configuration and validation errors).
func exitCodeFor(err error) int {
	if errors.Is(err, context.Canceled) {
		return 130
	}
	var coder commands.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return 1
}
