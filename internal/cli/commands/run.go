// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"railrna/internal/cluster"
	"railrna/internal/executor"
	"railrna/pkg/executil"
	"railrna/pkg/logging"
	"railrna/pkg/pipeline"
	"railrna/pkg/railurl"
)

// NewRunCommand returns the `railrna run` command.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compile the pipeline and execute it on the selected backend",
		Long:  "Executes the compiled pipeline on --backend. The cluster backend prints the job-flow descriptor it would submit rather than placing it on a live queue, since submission requires account-specific access this CLI does not manage.",
		RunE:  runRun,
	}

	cmd.Flags().Int("reducer-slots", 1, "reducer parallelism R used to resolve task counts")
	cmd.Flags().String("intermediate", "", "intermediate/scratch directory URL")
	cmd.Flags().StringP("output", "o", "", "final output directory URL")
	cmd.Flags().String("scratch", "", "local scratch directory (local backend only)")
	addNumericsFlags(cmd)
	_ = cmd.MarkFlagRequired("intermediate")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	flags := ResolveFlags(cmd)

	protosteps, err := pipeline.LoadFile(flags.Pipeline)
	if err != nil {
		return fmt.Errorf("loading pipeline: %w", err)
	}

	reducerSlots, _ := cmd.Flags().GetInt("reducer-slots")
	intermediateFlag, _ := cmd.Flags().GetString("intermediate")
	outputFlag, _ := cmd.Flags().GetString("output")

	backend, err := backendKindFor(flags.Backend)
	if err != nil {
		return err
	}

	pipe, err := pipeline.Compile(protosteps, pipeline.CompileOptions{
		R:               reducerSlots,
		IntermediateDir: railurl.Classify(intermediateFlag),
		OutputDir:       railurl.Classify(outputFlag),
		Backend:         backend,
	})
	if err != nil {
		return fmt.Errorf("compiling pipeline: %w", err)
	}

	if flags.DryRun {
		return renderPlanText(cmd.OutOrStdout(), pipe)
	}

	logger := logging.NewLogger(flags.Verbose)

	switch backend {
	case pipeline.BackendLocal:
		return runLocal(cmd, pipe, logger)
	case pipeline.BackendCluster:
		return runCluster(cmd, pipe)
	case pipeline.BackendParallel:
		return fmt.Errorf("run: parallel backend dispatch is driven through the cluster's own engine pool; see internal/parallel")
	default:
		return fmt.Errorf("run: unsupported backend %q", flags.Backend)
	}
}

func runLocal(cmd *cobra.Command, pipe pipeline.Pipeline, logger logging.Logger) error {
	scratchDir, _ := cmd.Flags().GetString("scratch")
	if scratchDir == "" {
		var err error
		scratchDir, err = os.MkdirTemp("", "railrna-scratch-")
		if err != nil {
			return fmt.Errorf("creating scratch directory: %w", err)
		}
	}
	numProcesses, _ := cmd.Flags().GetInt("num-processes")
	maxTaskAttempts, _ := cmd.Flags().GetInt("max-task-attempts")
	gzipIntermediates, _ := cmd.Flags().GetBool("gzip-intermediates")
	gzipLevel, _ := cmd.Flags().GetInt("gzip-level")
	sortMemoryCap, _ := cmd.Flags().GetString("sort-memory-cap")
	keepIntermediates, _ := cmd.Flags().GetBool("keep-intermediates")

	runner := executil.NewRunner()
	exec := executor.New(executor.Options{
		Concurrency:       numProcesses,
		ScratchDir:        scratchDir,
		MaxTaskAttempts:   maxTaskAttempts,
		GzipIntermediates: gzipIntermediates,
		GzipLevel:         gzipLevel,
		SortMemoryCap:     sortMemoryCap,
		KeepIntermediates: keepIntermediates,
		Runner:            runner,
		Mover:             railurl.NewMover(runner),
		Logger:            logger,
	})

	if err := exec.Run(cmd.Context(), pipe); err != nil {
		return &ExecutionError{Err: fmt.Errorf("run: %w", err)}
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "run: pipeline completed")
	return nil
}

func runCluster(cmd *cobra.Command, pipe pipeline.Pipeline) error {
	descriptor, err := cluster.Plan(pipe, cluster.Options{
		Name:         "railrna",
		StreamingJar: "s3://elasticmapreduce/libs/hadoop-streaming.jar",
		Groups: []cluster.GroupSpec{
			{Role: cluster.RoleMaster, InstanceType: "m4.large", Count: 1, Market: cluster.MarketOnDemand},
		},
	})
	if err != nil {
		return fmt.Errorf("planning job flow: %w", err)
	}
	data, err := descriptor.JSON()
	if err != nil {
		return fmt.Errorf("encoding job flow: %w", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "run: cluster backend does not submit directly; job-flow descriptor follows")
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
