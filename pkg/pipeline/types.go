// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline compiles a declarative chain of protosteps into
// concrete Steps: mapper/reducer commands, partition and sort keys, task
// counts, and backend-specific staging steps (spec.md §3-4.3).
package pipeline

import "railrna/pkg/railurl"

// OpKind tags whether a protostep is a pure map (no shuffle) or a reduce
// (shuffle then operator-as-reducer).
type OpKind string

const (
	OpKindMap    OpKind = "map"
	OpKindReduce OpKind = "reduce"
)

// FailurePolicy names how a Step's non-zero exit is handled.
type FailurePolicy string

const (
	FailureTerminateAll FailurePolicy = "terminate-all"
	FailureCancelWait   FailurePolicy = "cancel-wait"
	FailureContinue     FailurePolicy = "continue"
)

// Program describes the opaque streaming operator a protostep runs: a
// name plus a command-line template. "{task_count}" in the template is
// substituted with the step's resolved task count at compile time.
type Program struct {
	Name     string
	Template []string
}

// Archive is a side input extracted into a named directory on each worker.
type Archive struct {
	Source railurl.URL
	Name   string
}

// Flags bundles the protostep's optional boolean switches.
type Flags struct {
	MultipleOutputs   bool
	IndexOutput       bool
	DirectCopyToFinal bool
	NoInputPrefix     bool
	NoOutputPrefix    bool
}

// Protostep is the declarative, pre-compile description of one pipeline
// stage (spec.md §3). All fields beyond Name/Program/Inputs/Output are
// optional; Compile rejects illegal combinations explicitly.
type Protostep struct {
	Name    string
	Program Program

	// Inputs are logical names: each is either the Output of an earlier
	// protostep or a key of ExternalInputs.
	Inputs []string
	// ExternalInputs maps an input name to the URL of data not produced
	// by an earlier protostep.
	ExternalInputs map[string]railurl.URL

	// Output is a logical name (resolved beneath the intermediate
	// directory) or, if OutputIsExternal is set, a literal URL.
	Output           string
	OutputIsExternal bool
	ExternalOutput   railurl.URL

	// KeysPerRecord is K. Nil/zero means this is a pure map step.
	KeysPerRecord int
	// PartitionPrefixLength is P. Must satisfy 1 <= P <= K for reduce steps.
	PartitionPrefixLength int

	// TaskMultiplier, MinTasks, MaxTasks control task-count resolution (§4.3).
	TaskMultiplier *int
	MinTasks       *int
	MaxTasks       *int

	Archive       *Archive
	InputFormat   string
	Flags         Flags
	ExtraConfig   map[string]string
	FailurePolicy FailurePolicy
}

// OpKind reports whether this protostep is a pure map or a reduce, per
// the invariant in spec.md §3(b)/(c): presence of KeysPerRecord decides it.
func (p Protostep) OpKind() OpKind {
	if p.KeysPerRecord > 0 {
		return OpKindReduce
	}
	return OpKindMap
}

// ShuffleConfig is the compiled partition/sort configuration for a Step.
type ShuffleConfig struct {
	K int
	P int
}

// Step is a compiled pipeline stage: concrete commands, resolved task
// count, shuffle configuration, I/O locations and failure policy.
type Step struct {
	Name string

	MapperCmd  []string
	ReducerCmd []string

	// IsReduce mirrors the source protostep's OpKind; false means the
	// "reducer" above is really the identity reducer and MapperCmd is
	// the operator.
	IsReduce bool

	Shuffle   ShuffleConfig
	TaskCount int

	InputDirs []railurl.URL
	OutputDir railurl.URL

	Archive *Archive

	FailurePolicy FailurePolicy

	// MultipleOutputs/IndexOutput/DirectCopyToFinal carry forward the
	// protostep's flags for the executor and side-car step emission.
	MultipleOutputs   bool
	IndexOutput       bool
	DirectCopyToFinal bool

	ExtraConfig map[string]string
}

// Pipeline is the ordered list of compiled Steps, the intermediate
// directory they were resolved against, and a bootstrap-action list.
type Pipeline struct {
	Steps []Step

	// IntermediateDir is the scratch/result tree every logical output name
	// is resolved beneath, unless a protostep opts out via NoOutputPrefix.
	// Compile does not read Flags.NoInputPrefix: an input always resolves
	// to the producing step's output location or to its ExternalInputs URL.
	IntermediateDir railurl.URL

	// BootstrapActions is left empty by Compile; internal/cluster takes
	// its bootstrap actions from cluster.Options instead.
	BootstrapActions []string
}
