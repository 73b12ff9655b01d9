// SPDX-License-Identifier: AGPL-3.0-or-later

package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SingleEnded(t *testing.T) {
	data := "# comment\n\nreads.fq.gz\t0\tGroupA-1-1\n"
	m, errs := Parse(strings.NewReader(data))
	require.Empty(t, errs)
	require.Len(t, m.Lines, 1)

	line := m.Lines[0]
	assert.False(t, line.Paired)
	assert.Equal(t, "reads.fq.gz", line.URL1.Raw)
	assert.Equal(t, "0", line.Tag1)
	assert.Equal(t, "GroupA", line.Label.Group)
	assert.Equal(t, "1", line.Label.BioRep)
	assert.Equal(t, "1", line.Label.TechRep)
}

func TestParse_PairedEnded(t *testing.T) {
	data := "r1.fq.gz\tabc123\tr2.fq.gz\tdef456\tGroupA-1-1\n"
	m, errs := Parse(strings.NewReader(data))
	require.Empty(t, errs)
	require.Len(t, m.Lines, 1)

	line := m.Lines[0]
	assert.True(t, line.Paired)
	assert.Equal(t, "r1.fq.gz", line.URL1.Raw)
	assert.Equal(t, "r2.fq.gz", line.URL2.Raw)
	assert.Equal(t, "abc123", line.Tag1)
	assert.Equal(t, "def456", line.Tag2)
}

func TestParse_SampleLabelShape(t *testing.T) {
	// Scenario 4: "reads.fq.gz\t0\tGroupA-Rep1" must be rejected, naming
	// the line number and the required pattern.
	data := "reads.fq.gz\t0\tGroupA-Rep1\n"
	_, errs := Parse(strings.NewReader(data))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "line 1")
	assert.Contains(t, errs[0].Error(), "<Group>-<BioRep>-<TechRep>")
}

func TestParse_WrongFieldCount(t *testing.T) {
	data := "a\tb\n"
	_, errs := Parse(strings.NewReader(data))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "3 or 5")
}

func TestParse_AccumulatesMultipleErrors(t *testing.T) {
	data := "a\tb\nc\td\te\tf\tBadLabel\nvalid.fq\t0\tG-1-1\n"
	m, errs := Parse(strings.NewReader(data))
	require.Len(t, errs, 2)
	require.Len(t, m.Lines, 1)
}

func TestParseSampleLabel(t *testing.T) {
	label, err := ParseSampleLabel("GroupA-1-2")
	require.NoError(t, err)
	assert.Equal(t, "GroupA", label.Group)
	assert.Equal(t, "1", label.BioRep)
	assert.Equal(t, "2", label.TechRep)

	_, err = ParseSampleLabel("NoHyphens")
	require.Error(t, err)

	_, err = ParseSampleLabel("too-many-hyphens-here")
	require.Error(t, err)
}
