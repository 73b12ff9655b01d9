// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cluster builds the job-flow descriptor a hosted MapReduce
// service consumes: bootstrap actions, instance groups, and a step list
// derived from a compiled pipeline.Pipeline (spec.md §4.5, §6).
package cluster

import (
	"encoding/json"
	"fmt"

	"railrna/pkg/pipeline"
)

// InstanceRole names a job-flow instance group's role.
type InstanceRole string

const (
	RoleMaster InstanceRole = "MASTER"
	RoleCore   InstanceRole = "CORE"
	RoleTask   InstanceRole = "TASK"
)

// Market names how an instance group is billed.
type Market string

const (
	MarketOnDemand Market = "ON_DEMAND"
	MarketSpot     Market = "SPOT"
)

// ActionOnFailure names what the hosted service does when a step's
// process exits non-zero (spec.md §4.5).
type ActionOnFailure string

const (
	ActionTerminateAll     ActionOnFailure = "TERMINATE_JOB_FLOW"
	ActionCancelAndWait    ActionOnFailure = "CANCEL_AND_WAIT"
	ActionContinue         ActionOnFailure = "CONTINUE"
	ActionTerminateCluster ActionOnFailure = "TERMINATE_CLUSTER"
)

// InstanceGroup is one job-flow instance group.
type InstanceGroup struct {
	InstanceCount int          `json:"InstanceCount"`
	InstanceRole  InstanceRole `json:"InstanceRole"`
	InstanceType  string       `json:"InstanceType"`
	Market        Market       `json:"Market"`
	BidPrice      string       `json:"BidPrice,omitempty"`
}

// Instances is the job-flow's instances block.
type Instances struct {
	InstanceGroups []InstanceGroup `json:"InstanceGroups"`
}

// BootstrapAction is one bootstrap step run on every instance before job
// steps start (install toolchain, stage reference archive, stage manifest).
type BootstrapAction struct {
	Name       string   `json:"Name"`
	ScriptPath string   `json:"ScriptPath"`
	Args       []string `json:"Args,omitempty"`
}

// HadoopJarStep is the actual command a job-flow step runs.
type HadoopJarStep struct {
	Jar  string   `json:"Jar"`
	Args []string `json:"Args"`
}

// StepEntry is one job-flow step.
type StepEntry struct {
	Name            string          `json:"Name"`
	ActionOnFailure ActionOnFailure `json:"ActionOnFailure"`
	HadoopJarStep   HadoopJarStep   `json:"HadoopJarStep"`
}

// Descriptor is the full job-flow descriptor, field names matching
// spec.md §6 exactly so it is consumable unchanged by an external
// hosted-MapReduce client.
type Descriptor struct {
	Name              string            `json:"Name"`
	LogUri            string            `json:"LogUri"`
	AmiVersion        string            `json:"AmiVersion"`
	Tags              map[string]string `json:"Tags,omitempty"`
	VisibleToAllUsers string            `json:"VisibleToAllUsers"`
	Instances         Instances         `json:"Instances"`
	BootstrapActions  []BootstrapAction `json:"BootstrapActions,omitempty"`
	Steps             []StepEntry       `json:"Steps"`
}

// JSON renders the descriptor the way an external client expects to
// receive it.
func (d Descriptor) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// actionForPolicy translates a compiled Step's FailurePolicy to the
// job-flow's ActionOnFailure vocabulary. Binding is by the step's own
// policy, not by its position in the step list (see DESIGN.md's Open
// Question decision) — a side-car step inserted by the compiler carries
// its parent's policy forward rather than defaulting positionally.
func actionForPolicy(p pipeline.FailurePolicy) ActionOnFailure {
	switch p {
	case pipeline.FailureContinue:
		return ActionContinue
	case pipeline.FailureCancelWait:
		return ActionCancelAndWait
	default:
		return ActionTerminateAll
	}
}

// BuildSteps converts a compiled Pipeline's Steps into job-flow StepEntry
// values. The Jar is the hosted service's streaming-job launcher; Args
// carry the mapper/reducer commands, input/output paths and shuffle
// configuration as the streaming jar's conventional flag set.
func BuildSteps(pipe pipeline.Pipeline, streamingJar string) []StepEntry {
	entries := make([]StepEntry, 0, len(pipe.Steps))
	for _, step := range pipe.Steps {
		args := []string{
			"-input", joinInputs(step),
			"-output", step.OutputDir.Native(),
			"-mapper", joinCmd(step.MapperCmd),
			"-reducer", joinCmd(step.ReducerCmd),
		}
		if step.IsReduce {
			args = append(args,
				"-numReduceTasks", fmt.Sprintf("%d", step.TaskCount),
				"-jobconf", fmt.Sprintf("stream.num.map.output.key.fields=%d", step.Shuffle.K),
				"-jobconf", fmt.Sprintf("mapreduce.partition.keypartitioner.options=-k1,%d", step.Shuffle.P),
			)
		}
		if step.Archive != nil {
			args = append(args, "-archives", step.Archive.Source.Native()+"#"+step.Archive.Name)
		}

		entries = append(entries, StepEntry{
			Name:            step.Name,
			ActionOnFailure: actionForPolicy(step.FailurePolicy),
			HadoopJarStep: HadoopJarStep{
				Jar:  streamingJar,
				Args: args,
			},
		})
	}
	return entries
}

func joinInputs(step pipeline.Step) string {
	out := ""
	for i, u := range step.InputDirs {
		if i > 0 {
			out += ","
		}
		out += u.Native()
	}
	return out
}

func joinCmd(cmd []string) string {
	out := ""
	for i, tok := range cmd {
		if i > 0 {
			out += " "
		}
		out += tok
	}
	return out
}
