// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"railrna/pkg/railurl"
)

// ErrPipelineFileNotFound is returned when LoadFile's path does not exist.
var ErrPipelineFileNotFound = errors.New("pipeline: file not found")

// DefaultPipelinePath is the conventional location of a protostep
// document in the current working directory.
func DefaultPipelinePath() string {
	return "pipeline.yml"
}

// protostepDoc is the YAML-facing shape of one protostep. Protostep
// itself carries railurl.URL and Archive fields that don't round-trip
// through YAML directly, so the document format stays a flat set of
// strings and toProtostep converts it.
type protostepDoc struct {
	Name    string   `yaml:"name"`
	Program string   `yaml:"program"`
	Args    []string `yaml:"args,omitempty"`

	Inputs         []string          `yaml:"inputs,omitempty"`
	ExternalInputs map[string]string `yaml:"external_inputs,omitempty"`

	Output           string `yaml:"output,omitempty"`
	ExternalOutput   string `yaml:"external_output,omitempty"`
	NoInputPrefix    bool   `yaml:"no_input_prefix,omitempty"`
	NoOutputPrefix   bool   `yaml:"no_output_prefix,omitempty"`

	KeysPerRecord         int `yaml:"keys_per_record,omitempty"`
	PartitionPrefixLength int `yaml:"partition_prefix_length,omitempty"`

	TaskMultiplier *int `yaml:"task_multiplier,omitempty"`
	MinTasks       *int `yaml:"min_tasks,omitempty"`
	MaxTasks       *int `yaml:"max_tasks,omitempty"`

	ArchiveSource string `yaml:"archive_source,omitempty"`
	ArchiveName   string `yaml:"archive_name,omitempty"`

	InputFormat string            `yaml:"input_format,omitempty"`
	ExtraConfig map[string]string `yaml:"extra_config,omitempty"`

	MultipleOutputs   bool `yaml:"multiple_outputs,omitempty"`
	IndexOutput       bool `yaml:"index_output,omitempty"`
	DirectCopyToFinal bool `yaml:"direct_copy_to_final,omitempty"`

	FailurePolicy string `yaml:"failure_policy,omitempty"`
}

// pipelineDoc is the top-level pipeline.yml shape: an ordered list of
// protosteps.
type pipelineDoc struct {
	Steps []protostepDoc `yaml:"steps"`
}

// LoadFile reads and decodes a protostep document from path.
func LoadFile(path string) ([]Protostep, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPipelineFileNotFound
		}
		return nil, fmt.Errorf("pipeline: checking %s: %w", path, err)
	}

	// nolint:gosec // G304: reading a user-specified pipeline file is expected behavior
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: reading %s: %w", path, err)
	}

	return Decode(data)
}

// Decode parses a protostep document from raw YAML bytes.
func Decode(data []byte) ([]Protostep, error) {
	var doc pipelineDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("pipeline: parsing document: %w", err)
	}

	protosteps := make([]Protostep, 0, len(doc.Steps))
	for i, d := range doc.Steps {
		ps, err := d.toProtostep()
		if err != nil {
			return nil, fmt.Errorf("pipeline: step %d (%q): %w", i, d.Name, err)
		}
		protosteps = append(protosteps, ps)
	}
	return protosteps, nil
}

func (d protostepDoc) toProtostep() (Protostep, error) {
	if d.Name == "" {
		return Protostep{}, fmt.Errorf("missing name")
	}
	if d.Program == "" {
		return Protostep{}, fmt.Errorf("missing program")
	}

	ps := Protostep{
		Name:                  d.Name,
		Program:               Program{Name: d.Program, Template: append([]string{d.Program}, d.Args...)},
		Inputs:                d.Inputs,
		Output:                d.Output,
		KeysPerRecord:         d.KeysPerRecord,
		PartitionPrefixLength: d.PartitionPrefixLength,
		TaskMultiplier:        d.TaskMultiplier,
		MinTasks:              d.MinTasks,
		MaxTasks:              d.MaxTasks,
		InputFormat:           d.InputFormat,
		ExtraConfig:           d.ExtraConfig,
		FailurePolicy:         FailurePolicy(d.FailurePolicy),
		Flags: Flags{
			MultipleOutputs:   d.MultipleOutputs,
			IndexOutput:       d.IndexOutput,
			DirectCopyToFinal: d.DirectCopyToFinal,
			NoInputPrefix:     d.NoInputPrefix,
			NoOutputPrefix:    d.NoOutputPrefix,
		},
	}

	if len(d.ExternalInputs) > 0 {
		ps.ExternalInputs = make(map[string]railurl.URL, len(d.ExternalInputs))
		for name, raw := range d.ExternalInputs {
			ps.ExternalInputs[name] = railurl.Classify(raw)
		}
	}

	if d.ExternalOutput != "" {
		ps.OutputIsExternal = true
		ps.ExternalOutput = railurl.Classify(d.ExternalOutput)
	}

	if d.ArchiveSource != "" {
		ps.Archive = &Archive{Source: railurl.Classify(d.ArchiveSource), Name: d.ArchiveName}
	}

	return ps, nil
}
