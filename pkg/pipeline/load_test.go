// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `
steps:
  - name: align
    program: aligner
    args: ["--threads", "4"]
    inputs: ["reads"]
    external_inputs:
      reads: "s3://bucket/reads"
    output: aligned

  - name: collect
    program: collector
    inputs: ["aligned"]
    output: collected
    keys_per_record: 3
    partition_prefix_length: 2
    min_tasks: 5
    max_tasks: 20
`

func TestDecode_BuildsProtostepsFromYAML(t *testing.T) {
	protosteps, err := Decode([]byte(sampleDoc))
	require.NoError(t, err)
	require.Len(t, protosteps, 2)

	assert.Equal(t, "align", protosteps[0].Name)
	assert.Equal(t, OpKindMap, protosteps[0].OpKind())
	assert.Equal(t, "s3://bucket/reads", protosteps[0].ExternalInputs["reads"].Raw)

	assert.Equal(t, OpKindReduce, protosteps[1].OpKind())
	assert.Equal(t, 3, protosteps[1].KeysPerRecord)
	assert.Equal(t, 2, protosteps[1].PartitionPrefixLength)
}

func TestDecode_RejectsStepWithoutName(t *testing.T) {
	_, err := Decode([]byte("steps:\n  - program: foo\n"))
	assert.Error(t, err)
}

func TestLoadFile_MissingFileReturnsSentinel(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	assert.ErrorIs(t, err, ErrPipelineFileNotFound)
}

func TestLoadFile_ReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))

	protosteps, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, protosteps, 2)
}
