// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands implements railrna's Cobra subcommands: validate,
// plan, and run.
package commands

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// ResolvedFlags contains the resolved values for railrna's global flags.
type ResolvedFlags struct {
	Pipeline string
	Backend  string
	Verbose  bool
	DryRun   bool
}

// ResolveFlags resolves global flags with the following precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables
// 3. Built-in defaults (lowest priority)
func ResolveFlags(cmd *cobra.Command) *ResolvedFlags {
	flags := &ResolvedFlags{}

	pipelineFlag, _ := cmd.Flags().GetString("pipeline")
	flags.Pipeline = resolveString(pipelineFlag, os.Getenv("RAILRNA_PIPELINE"), "pipeline.yml")

	backendFlag, _ := cmd.Flags().GetString("backend")
	flags.Backend = resolveString(backendFlag, os.Getenv("RAILRNA_BACKEND"), "local")

	verboseFlag, _ := cmd.Flags().GetBool("verbose")
	flags.Verbose = resolveBool(verboseFlag, parseBoolEnv(os.Getenv("RAILRNA_VERBOSE")), false)

	dryRunFlag, _ := cmd.Flags().GetBool("dry-run")
	flags.DryRun = resolveBool(dryRunFlag, parseBoolEnv(os.Getenv("RAILRNA_DRY_RUN")), false)

	return flags
}

// resolveString resolves a string value with precedence: flag > env > default.
func resolveString(flag, env, defaultValue string) string {
	if flag != "" {
		return flag
	}
	if env != "" {
		return env
	}
	return defaultValue
}

// resolveBool resolves a boolean value with precedence: flag > env > default.
func resolveBool(flag, env, defaultValue bool) bool {
	if flag {
		return true
	}
	if env {
		return true
	}
	return defaultValue
}

// parseBoolEnv parses a boolean from an environment variable.
// Returns false if the env var is not set or cannot be parsed.
func parseBoolEnv(value string) bool {
	if value == "" {
		return false
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false
	}
	return parsed
}
