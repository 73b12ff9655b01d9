// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli wires together railrna's root Cobra command and global CLI options.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"railrna/internal/cli/commands"
)

// NewRootCommand constructs the railrna root Cobra command, wiring the
// validate, plan, and run subcommands.
func NewRootCommand() *cobra.Command {
	version := os.Getenv("RAILRNA_VERSION")
	if version == "" {
		version = "0.0.0-dev"
	}

	cmd := &cobra.Command{
		Use:           "railrna",
		Short:         "railrna – spliced RNA-seq alignment pipeline driver",
		Long:          "railrna compiles a declarative pipeline of mapper/reducer steps and drives it across a local, SSH-fleet, or hosted-cluster MapReduce backend.",
		SilenceUsage:  true, // don't dump usage on user errors
		SilenceErrors: true, // centralize error printing in main()
	}

	// Global flags - registered in lexicographic order for deterministic help output
	cmd.PersistentFlags().StringP("backend", "b", "", "execution backend: local, parallel, or cluster")
	cmd.PersistentFlags().Bool("dry-run", false, "compile and print the plan without executing it")
	cmd.PersistentFlags().String("pipeline", "", "path to pipeline.yml")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	// Version command – simple and explicit.
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of railrna",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "railrna version %s\n", version)
		},
	})

	// Subcommands - keep registrations in lexicographic order by .Use
	// to ensure deterministic help output.
	cmd.AddCommand(commands.NewPlanCommand())
	cmd.AddCommand(commands.NewRunCommand())
	cmd.AddCommand(commands.NewValidateCommand())

	return cmd
}
