// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"railrna/pkg/railurl"
)

// BackendKind names the execution backend Compile is targeting; it only
// affects side-car step emission (index-output, staging copies), never
// the core mapper/reducer/shuffle logic.
type BackendKind string

const (
	BackendLocal    BackendKind = "local"
	BackendParallel BackendKind = "parallel"
	BackendCluster  BackendKind = "cluster"
)

// Sentinel compile errors. Each names exactly what spec.md §8's protostep
// law requires the compiler to reject.
var (
	// ErrPartitionExceedsKey is returned when a reduce protostep sets P > K.
	ErrPartitionExceedsKey = errors.New("pipeline: partition-prefix length exceeds key length")
	// ErrBothOutputFlags is returned when multiple-outputs and
	// direct-copy-to-final are both set (spec.md §3 invariant (d)).
	ErrBothOutputFlags = errors.New("pipeline: multiple-outputs and direct-copy-to-final are mutually exclusive")
	// ErrUnknownInput is returned when a protostep names a logical input
	// that no earlier protostep produced and that has no external URL.
	ErrUnknownInput = errors.New("pipeline: unknown input")
	// ErrZeroPartition is returned when a reduce protostep sets P < 1.
	ErrZeroPartition = errors.New("pipeline: partition-prefix length must be at least 1")
)

// CompileOptions parameterizes Compile: the declared reducer parallelism
// R, where intermediate/final artefacts live, and which backend's
// side-car steps to emit.
type CompileOptions struct {
	// R is the cluster's total reducer-slot count (cluster backend) or the
	// user's process count (local/parallel backends).
	R int

	IntermediateDir railurl.URL
	OutputDir       railurl.URL

	Backend BackendKind

	// DefaultFailurePolicy is used for any protostep that does not set one.
	DefaultFailurePolicy FailurePolicy
}

// Compile turns protosteps into a Pipeline. Compile is deterministic:
// identical inputs produce a byte-identical (field-for-field equal) Step
// list, since it performs no I/O and consults no clock or RNG.
func Compile(protosteps []Protostep, opts CompileOptions) (Pipeline, error) {
	if opts.R < 1 {
		opts.R = 1
	}
	if opts.DefaultFailurePolicy == "" {
		opts.DefaultFailurePolicy = FailureTerminateAll
	}

	// logicalOutputs maps a protostep's logical Output name to the output
	// URL of the Step that produced it, so later protosteps can resolve
	// their Inputs.
	logicalOutputs := map[string]railurl.URL{}

	pipe := Pipeline{IntermediateDir: opts.IntermediateDir}

	for _, ps := range protosteps {
		step, sidecars, err := compileOne(ps, opts, logicalOutputs)
		if err != nil {
			return Pipeline{}, fmt.Errorf("compiling protostep %q: %w", ps.Name, err)
		}

		pipe.Steps = append(pipe.Steps, step)

		if !ps.OutputIsExternal {
			logicalOutputs[ps.Output] = step.OutputDir
		}

		pipe.Steps = append(pipe.Steps, sidecars...)
		for _, sc := range sidecars {
			// Side-car steps never introduce new logical outputs that later
			// protosteps name directly; they operate on the parent step's
			// already-registered output location.
			_ = sc
		}
	}

	return pipe, nil
}

func compileOne(ps Protostep, opts CompileOptions, logicalOutputs map[string]railurl.URL) (Step, []Step, error) {
	if ps.Flags.MultipleOutputs && ps.Flags.DirectCopyToFinal {
		return Step{}, nil, fmt.Errorf("%w (step %q sets both)", ErrBothOutputFlags, ps.Name)
	}

	opKind := ps.OpKind()

	var shuffle ShuffleConfig
	taskCount := 1

	if opKind == OpKindReduce {
		if ps.PartitionPrefixLength < 1 {
			return Step{}, nil, fmt.Errorf("%w (step %q)", ErrZeroPartition, ps.Name)
		}
		if ps.PartitionPrefixLength > ps.KeysPerRecord {
			return Step{}, nil, fmt.Errorf("%w (step %q: P=%d K=%d)",
				ErrPartitionExceedsKey, ps.Name, ps.PartitionPrefixLength, ps.KeysPerRecord)
		}
		shuffle = ShuffleConfig{K: ps.KeysPerRecord, P: ps.PartitionPrefixLength}
		taskCount = resolveTaskCount(ps, opts.R)
	}

	inputDirs, err := resolveInputs(ps, opts, logicalOutputs)
	if err != nil {
		return Step{}, nil, err
	}

	outputDir := resolveOutput(ps, opts)

	mapperCmd, reducerCmd := resolveCommands(ps, opKind, taskCount)

	failurePolicy := ps.FailurePolicy
	if failurePolicy == "" {
		failurePolicy = opts.DefaultFailurePolicy
	}

	step := Step{
		Name:              ps.Name,
		MapperCmd:         mapperCmd,
		ReducerCmd:        reducerCmd,
		IsReduce:          opKind == OpKindReduce,
		Shuffle:           shuffle,
		TaskCount:         taskCount,
		InputDirs:         inputDirs,
		OutputDir:         outputDir,
		Archive:           ps.Archive,
		FailurePolicy:     failurePolicy,
		MultipleOutputs:   ps.Flags.MultipleOutputs,
		IndexOutput:       ps.Flags.IndexOutput,
		DirectCopyToFinal: ps.Flags.DirectCopyToFinal,
		ExtraConfig:       ps.ExtraConfig,
	}

	sidecars := buildSidecars(ps, opts, step)

	return step, sidecars, nil
}

// resolveTaskCount implements spec.md §4.3's rounding rule, matching the
// original driver's step()/steps() functions (rna_config.py) exactly:
// task-multiplier wins outright; otherwise min-tasks rounds up to the
// next multiple of R and is clipped to max-tasks.
func resolveTaskCount(ps Protostep, r int) int {
	if ps.TaskMultiplier != nil {
		return *ps.TaskMultiplier * r
	}
	if ps.MinTasks == nil {
		return 1
	}

	min := *ps.MinTasks
	t := roundUpToMultiple(min, r)
	if ps.MaxTasks != nil && t > *ps.MaxTasks {
		t = *ps.MaxTasks
	}
	if t < 1 {
		t = 1
	}
	return t
}

func roundUpToMultiple(n, r int) int {
	if r <= 0 {
		return n
	}
	if n%r == 0 {
		return n
	}
	return n + (r - n%r)
}

func resolveInputs(ps Protostep, opts CompileOptions, logicalOutputs map[string]railurl.URL) ([]railurl.URL, error) {
	inputs := make([]railurl.URL, 0, len(ps.Inputs))
	for _, name := range ps.Inputs {
		if u, ok := ps.ExternalInputs[name]; ok {
			inputs = append(inputs, u)
			continue
		}
		if u, ok := logicalOutputs[name]; ok {
			inputs = append(inputs, u)
			continue
		}
		return nil, fmt.Errorf("%w %q (step %q)", ErrUnknownInput, name, ps.Name)
	}
	return inputs, nil
}

// resolveOutput returns the location the Step itself writes to. When
// needsStagingCopy holds, that is a staged DFS location, not the real
// final URL: the parent step's reducer tasks never touch the
// eventually-consistent object store directly, and a copy-to-final
// side-car (buildSidecars) moves the staged data to resolveFinalOutput's
// URL afterward (spec.md §4.3).
func resolveOutput(ps Protostep, opts CompileOptions) railurl.URL {
	if needsStagingCopy(ps, opts) {
		return stagedOutput(ps, opts)
	}
	return resolveFinalOutput(ps, opts)
}

// resolveFinalOutput is the step's real destination, ignoring staging.
func resolveFinalOutput(ps Protostep, opts CompileOptions) railurl.URL {
	if ps.OutputIsExternal {
		return ps.ExternalOutput
	}
	if ps.Flags.NoOutputPrefix {
		return opts.OutputDir.Join(ps.Output)
	}
	return opts.IntermediateDir.Join(ps.Output)
}

// stagedOutput is the temporary DFS location a staging-copy protostep's
// Step writes through before its side-car copies the data to
// resolveFinalOutput.
func stagedOutput(ps Protostep, opts CompileOptions) railurl.URL {
	return opts.IntermediateDir.Join(ps.Name + "-staged")
}

// resolveCommands implements spec.md §3 invariant (b)/(c): a pure map
// step runs the operator as the mapper with an identity reducer; a
// reduce step runs identity as the mapper with the operator as the
// reducer, after shuffle on the first K fields.
func resolveCommands(ps Protostep, kind OpKind, taskCount int) (mapperCmd, reducerCmd []string) {
	operator := substituteTaskCount(ps.Program.Template, taskCount)
	identity := []string{"cat"}

	if kind == OpKindMap {
		return operator, identity
	}
	return identity, operator
}

func substituteTaskCount(template []string, taskCount int) []string {
	out := make([]string, len(template))
	for i, tok := range template {
		out[i] = strings.ReplaceAll(tok, "{task_count}", strconv.Itoa(taskCount))
	}
	return out
}

// buildSidecars emits the side-car steps spec.md §4.3 describes: an
// index-the-output step after an index-output-flagged step on cluster
// backends, and a copy-to-final-and-delete-staging step when the parent's
// output is staged through an intermediate DFS location.
func buildSidecars(ps Protostep, opts CompileOptions, parent Step) []Step {
	var sidecars []Step

	if ps.Flags.IndexOutput && opts.Backend == BackendCluster {
		sidecars = append(sidecars, Step{
			Name:          ps.Name + "-index",
			MapperCmd:     []string{"index-artefacts", parent.OutputDir.Native()},
			ReducerCmd:    []string{"cat"},
			IsReduce:      false,
			TaskCount:     1,
			InputDirs:     []railurl.URL{parent.OutputDir},
			OutputDir:     parent.OutputDir,
			FailurePolicy: parent.FailurePolicy,
		})
	}

	if needsStagingCopy(ps, opts) {
		// parent.OutputDir is the staged location resolveOutput routed the
		// parent Step's own writes through; the side-car moves it to the
		// real final URL.
		staged := parent.OutputDir
		final := resolveFinalOutput(ps, opts)
		sidecars = append(sidecars, Step{
			Name:          ps.Name + "-copy-to-final",
			MapperCmd:     []string{"copy-and-delete-staging", staged.Native(), final.Native()},
			ReducerCmd:    []string{"cat"},
			IsReduce:      false,
			TaskCount:     1,
			InputDirs:     []railurl.URL{staged},
			OutputDir:     final,
			FailurePolicy: parent.FailurePolicy,
		})
	}

	return sidecars
}

// needsStagingCopy reports whether the compiler should route a step's
// output through a temporary DFS location because of eventual-consistency
// concerns on an object-store output (spec.md §4.3).
func needsStagingCopy(ps Protostep, opts CompileOptions) bool {
	if ps.OutputIsExternal {
		return ps.ExternalOutput.Variant == railurl.VariantObjectStore && opts.Backend == BackendCluster
	}
	return ps.Flags.NoOutputPrefix && opts.OutputDir.Variant == railurl.VariantObjectStore && opts.Backend == BackendCluster
}
