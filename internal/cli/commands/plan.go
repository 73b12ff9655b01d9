// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"railrna/internal/cluster"
	"railrna/pkg/pipeline"
	"railrna/pkg/railurl"
)

// NewPlanCommand returns the `railrna plan` command.
func NewPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compile the pipeline and show the steps without running them",
		Long:  "Compiles pipeline.yml into concrete steps and prints the resulting plan. --format json prints the compiled Pipeline as JSON; on the cluster backend it prints the job-flow descriptor instead.",
		RunE:  runPlan,
	}

	cmd.Flags().Int("reducer-slots", 1, "reducer parallelism R used to resolve task counts")
	cmd.Flags().String("intermediate", "", "intermediate/scratch directory URL")
	cmd.Flags().String("output", "", "final output directory URL")
	cmd.Flags().String("format", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("intermediate")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runPlan(cmd *cobra.Command, _ []string) error {
	flags := ResolveFlags(cmd)

	protosteps, err := pipeline.LoadFile(flags.Pipeline)
	if err != nil {
		return fmt.Errorf("loading pipeline: %w", err)
	}

	reducerSlots, _ := cmd.Flags().GetInt("reducer-slots")
	intermediateFlag, _ := cmd.Flags().GetString("intermediate")
	outputFlag, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")

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

	if format == "json" {
		if backend == pipeline.BackendCluster {
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
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		}
		return renderPlanJSON(cmd.OutOrStdout(), pipe)
	}

	return renderPlanText(cmd.OutOrStdout(), pipe)
}

// planStepJSON mirrors pipeline.Step for --format json on the local and
// parallel backends, where there is no job-flow descriptor to print
// instead: it's the compiled plan itself, with URLs rendered through
// Display() rather than their raw tagged-union form.
type planStepJSON struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	MapperCmd  []string `json:"mapper_cmd"`
	ReducerCmd []string `json:"reducer_cmd,omitempty"`
	ShuffleK   int      `json:"shuffle_k,omitempty"`
	ShuffleP   int      `json:"shuffle_p,omitempty"`
	TaskCount  int      `json:"task_count"`
	Inputs     []string `json:"inputs"`
	Output     string   `json:"output"`
}

func renderPlanJSON(out io.Writer, pipe pipeline.Pipeline) error {
	steps := make([]planStepJSON, len(pipe.Steps))
	for i, step := range pipe.Steps {
		kind := "map"
		if step.IsReduce {
			kind = "reduce"
		}
		inputs := make([]string, len(step.InputDirs))
		for j, in := range step.InputDirs {
			inputs[j] = in.Display()
		}
		s := planStepJSON{
			Name:       step.Name,
			Kind:       kind,
			MapperCmd:  step.MapperCmd,
			ReducerCmd: step.ReducerCmd,
			TaskCount:  step.TaskCount,
			Inputs:     inputs,
			Output:     step.OutputDir.Display(),
		}
		if step.IsReduce {
			s.ShuffleK = step.Shuffle.K
			s.ShuffleP = step.Shuffle.P
		}
		steps[i] = s
	}

	data, err := json.MarshalIndent(struct {
		IntermediateDir string         `json:"intermediate_dir"`
		Steps           []planStepJSON `json:"steps"`
	}{
		IntermediateDir: pipe.IntermediateDir.Display(),
		Steps:           steps,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func renderPlanText(out io.Writer, pipe pipeline.Pipeline) error {
	for i, step := range pipe.Steps {
		kind := "map"
		if step.IsReduce {
			kind = "reduce"
		}
		if _, err := fmt.Fprintf(out, "%d. %s (%s)\n", i+1, step.Name, kind); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "   mapper:  %v\n", step.MapperCmd); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "   reducer: %v\n", step.ReducerCmd); err != nil {
			return err
		}
		if step.IsReduce {
			if _, err := fmt.Fprintf(out, "   shuffle: K=%d P=%d tasks=%d\n", step.Shuffle.K, step.Shuffle.P, step.TaskCount); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(out, "   output:  %s\n", step.OutputDir.Display()); err != nil {
			return err
		}
	}
	return nil
}

func backendKindFor(name string) (pipeline.BackendKind, error) {
	switch name {
	case "local", "":
		return pipeline.BackendLocal, nil
	case "parallel":
		return pipeline.BackendParallel, nil
	case "cluster":
		return pipeline.BackendCluster, nil
	default:
		return "", fmt.Errorf("unknown backend %q (want local, parallel, or cluster)", name)
	}
}
