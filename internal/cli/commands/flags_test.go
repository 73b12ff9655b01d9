// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func newFlagsTestCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("pipeline", "", "")
	cmd.Flags().String("backend", "", "")
	cmd.Flags().Bool("verbose", false, "")
	cmd.Flags().Bool("dry-run", false, "")
	return cmd
}

func TestResolveFlags_DefaultsWhenNothingSet(t *testing.T) {
	cmd := newFlagsTestCommand()
	flags := ResolveFlags(cmd)
	assert.Equal(t, "pipeline.yml", flags.Pipeline)
	assert.Equal(t, "local", flags.Backend)
	assert.False(t, flags.Verbose)
	assert.False(t, flags.DryRun)
}

func TestResolveFlags_EnvOverridesDefault(t *testing.T) {
	t.Setenv("RAILRNA_PIPELINE", "custom.yml")
	t.Setenv("RAILRNA_BACKEND", "cluster")
	t.Setenv("RAILRNA_VERBOSE", "true")

	cmd := newFlagsTestCommand()
	flags := ResolveFlags(cmd)
	assert.Equal(t, "custom.yml", flags.Pipeline)
	assert.Equal(t, "cluster", flags.Backend)
	assert.True(t, flags.Verbose)
}

func TestResolveFlags_FlagOverridesEnv(t *testing.T) {
	t.Setenv("RAILRNA_PIPELINE", "custom.yml")
	t.Setenv("RAILRNA_BACKEND", "cluster")

	cmd := newFlagsTestCommand()
	require := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	require(cmd.Flags().Set("pipeline", "flag.yml"))
	require(cmd.Flags().Set("backend", "parallel"))

	flags := ResolveFlags(cmd)
	assert.Equal(t, "flag.yml", flags.Pipeline)
	assert.Equal(t, "parallel", flags.Backend)
}
