// SPDX-License-Identifier: AGPL-3.0-or-later

package validate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railrna/pkg/credentials"
	"railrna/pkg/executil"
	"railrna/pkg/railurl"
)

func validManifest() string {
	return "/data/r1.fq\t0\tctrl-1-1\n"
}

func baseConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		Backend:        BackendLocal,
		OutputURL:      railurl.Classify(filepath.Join(dir, "output")),
		ManifestReader: strings.NewReader(validManifest()),
		Runner:         executil.NewRunner(),
		Mover:          railurl.NewMover(executil.NewRunner()),
		Resolver:       &credentials.Resolver{Getenv: func(string) string { return "" }},
	}
}

func TestValidate_CleanConfigHasNoErrors(t *testing.T) {
	cfg := baseConfig(t)
	report, err := Validate(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, report.HasErrors(), "%v", report.Errors)
}

func TestValidate_AccumulatesMultipleErrors(t *testing.T) {
	cfg := baseConfig(t)
	cfg.ManifestReader = strings.NewReader("bad line with no tabs\n")
	cfg.Numerics = []NumericParam{
		{Name: "seed-length", Value: -1, Domain: "a positive integer", Admitted: PositiveInt},
	}
	cfg.Executables = []Executable{
		{Name: "definitely-not-a-real-tool-xyz"},
	}

	report, err := Validate(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, report.HasErrors())
	assert.GreaterOrEqual(t, len(report.Errors), 3)
}

func TestValidate_ClusterBackendRejectsLocalOutput(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Backend = BackendCluster
	report, err := Validate(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, report.HasErrors())
	assert.Contains(t, report.Error(), "object-store location")
}

func TestValidate_ExistingOutputWithoutForceIsError(t *testing.T) {
	cfg := baseConfig(t)
	require.NoError(t, os.MkdirAll(cfg.OutputURL.Native(), 0o755))

	report, err := Validate(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, report.HasErrors())
	assert.Contains(t, report.Error(), "already exists")
}

func TestValidate_ExistingOutputWithForceIsFine(t *testing.T) {
	cfg := baseConfig(t)
	require.NoError(t, os.MkdirAll(cfg.OutputURL.Native(), 0o755))
	cfg.Force = true

	report, err := Validate(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, report.HasErrors())
}

func TestValidate_MissingCredentialsIsImmediateRaise(t *testing.T) {
	cfg := baseConfig(t)
	cfg.AssetURLs = []railurl.URL{railurl.Classify("s3://bucket/reads")}
	cfg.Resolver = &credentials.Resolver{Getenv: func(string) string { return "" }}

	report, err := Validate(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, errors.Is(err, credentials.ErrMissingCredentials))
}

func TestValidate_NumericErrorMessageMatchesSpecWording(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Numerics = []NumericParam{
		{Name: "num-processes", Value: 0, Domain: "an integer >= 1", Admitted: PositiveInt},
		{Name: "max-task-attempts", Value: 0, Domain: "an integer greater than 0", Admitted: PositiveInt},
	}

	report, err := Validate(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, report.Errors, 2)
	assert.Contains(t, report.Errors[0].Error(), "num-processes must be an integer >= 1, but 0 was entered")
	assert.Contains(t, report.Errors[1].Error(), "max-task-attempts must be an integer greater than 0, but 0 was entered")
}

func TestValidate_NumericDomains(t *testing.T) {
	assert.True(t, PositiveInt(3))
	assert.False(t, PositiveInt(0))
	assert.False(t, PositiveInt(1.5))
	assert.True(t, NonNegativeInt(0))
	assert.True(t, OpenInterval(0, 1)(0.5))
	assert.False(t, OpenInterval(0, 1)(1))
	assert.True(t, ClosedInterval(0, 1)(1))
	assert.True(t, Enum(1, 2, 3)(2))
	assert.False(t, Enum(1, 2, 3)(4))
}

func TestValidate_IndexFilesChecked(t *testing.T) {
	cfg := baseConfig(t)
	dir := t.TempDir()
	base := filepath.Join(dir, "genome")
	require.NoError(t, os.WriteFile(base+".1.ebwt", []byte("x"), 0o644))

	cfg.Indexes = []IndexSpec{
		{Name: "genome", Base: railurl.Classify(base), Extensions: []string{".1.ebwt", ".2.ebwt"}},
	}

	report, err := Validate(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, report.HasErrors())
	assert.Contains(t, report.Error(), ".2.ebwt")
}
