// SPDX-License-Identifier: AGPL-3.0-or-later

package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railrna/pkg/executil"
	"railrna/pkg/logging"
	"railrna/pkg/pipeline"
	"railrna/pkg/railurl"
)

func writeInput(t *testing.T, dir, name, content string) railurl.URL {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return railurl.Classify(path)
}

func readAllParts(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var lines []string
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name())) //nolint:gosec // test fixture
		require.NoError(t, err)
		for _, l := range splitNonEmpty(string(data)) {
			lines = append(lines, l)
		}
	}
	sort.Strings(lines)
	return lines
}

func splitNonEmpty(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == '\n' {
			if cur != "" {
				out = append(out, cur)
			}
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	return New(Options{
		Concurrency:     2,
		ScratchDir:      t.TempDir(),
		MaxTaskAttempts: 1,
		Runner:          executil.NewRunner(),
		Logger:          logging.NewLoggerTo(os.Stdout, os.Stderr, false),
	})
}

func TestExecutor_MapOnlyStep(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()

	a := writeInput(t, in, "a.txt", "hello\n")
	b := writeInput(t, in, "b.txt", "world\n")

	step := pipeline.Step{
		Name:       "upper",
		MapperCmd:  []string{"tr", "a-z", "A-Z"},
		ReducerCmd: []string{"cat"},
		IsReduce:   false,
		TaskCount:  1,
		InputDirs:  []railurl.URL{a, b},
		OutputDir:  railurl.Classify(out),
	}

	exec := newTestExecutor(t)
	err := exec.Run(context.Background(), pipeline.Pipeline{Steps: []pipeline.Step{step}})
	require.NoError(t, err)

	lines := readAllParts(t, out)
	assert.Equal(t, []string{"HELLO", "WORLD"}, lines)
}

func TestExecutor_ReduceStepPartitionsAndSorts(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()

	a := writeInput(t, in, "a.txt", "b\t2\nb\t1\na\t9\n")

	step := pipeline.Step{
		Name:       "group",
		MapperCmd:  []string{"cat"},
		ReducerCmd: []string{"cat"},
		IsReduce:   true,
		Shuffle:    pipeline.ShuffleConfig{K: 2, P: 1},
		TaskCount:  3,
		InputDirs:  []railurl.URL{a},
		OutputDir:  railurl.Classify(out),
	}

	exec := newTestExecutor(t)
	err := exec.Run(context.Background(), pipeline.Pipeline{Steps: []pipeline.Step{step}})
	require.NoError(t, err)

	lines := readAllParts(t, out)
	assert.ElementsMatch(t, []string{"a\t9", "b\t1", "b\t2"}, lines)
}

func TestExecutor_FailureContinuePolicyKeepsGoing(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	a := writeInput(t, in, "a.txt", "x\n")

	steps := []pipeline.Step{
		{
			Name:          "boom",
			MapperCmd:     []string{"false"},
			ReducerCmd:    []string{"cat"},
			TaskCount:     1,
			InputDirs:     []railurl.URL{a},
			OutputDir:     railurl.Classify(out),
			FailurePolicy: pipeline.FailureContinue,
		},
		{
			Name:       "ok",
			MapperCmd:  []string{"cat"},
			ReducerCmd: []string{"cat"},
			TaskCount:  1,
			InputDirs:  []railurl.URL{a},
			OutputDir:  railurl.Classify(out),
		},
	}

	exec := newTestExecutor(t)
	err := exec.Run(context.Background(), pipeline.Pipeline{Steps: steps})
	require.NoError(t, err)
}

func TestExecutor_GzipIntermediatesRoundTrips(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	scratch := t.TempDir()

	a := writeInput(t, in, "a.txt", "b\t2\nb\t1\na\t9\n")

	step := pipeline.Step{
		Name:       "group",
		MapperCmd:  []string{"cat"},
		ReducerCmd: []string{"cat"},
		IsReduce:   true,
		Shuffle:    pipeline.ShuffleConfig{K: 2, P: 1},
		TaskCount:  2,
		InputDirs:  []railurl.URL{a},
		OutputDir:  railurl.Classify(out),
	}

	exec := New(Options{
		Concurrency:       2,
		ScratchDir:        scratch,
		MaxTaskAttempts:   1,
		GzipIntermediates: true,
		Runner:            executil.NewRunner(),
		Logger:            logging.NewLoggerTo(os.Stdout, os.Stderr, false),
	})
	err := exec.Run(context.Background(), pipeline.Pipeline{Steps: []pipeline.Step{step}})
	require.NoError(t, err)

	lines := readAllParts(t, out)
	assert.ElementsMatch(t, []string{"a\t9", "b\t1", "b\t2"}, lines)
}

func TestExecutor_KeepIntermediatesLeavesScratchBehind(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	scratch := t.TempDir()
	a := writeInput(t, in, "a.txt", "hello\n")

	step := pipeline.Step{
		Name:       "upper",
		MapperCmd:  []string{"tr", "a-z", "A-Z"},
		ReducerCmd: []string{"cat"},
		TaskCount:  1,
		InputDirs:  []railurl.URL{a},
		OutputDir:  railurl.Classify(out),
	}

	exec := New(Options{
		Concurrency:       1,
		ScratchDir:        scratch,
		MaxTaskAttempts:   1,
		KeepIntermediates: true,
		Runner:            executil.NewRunner(),
		Logger:            logging.NewLoggerTo(os.Stdout, os.Stderr, false),
	})
	require.NoError(t, exec.Run(context.Background(), pipeline.Pipeline{Steps: []pipeline.Step{step}}))

	entries, err := os.ReadDir(filepath.Join(scratch, "upper"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "scratch for the step should survive when KeepIntermediates is set")
}

func TestExecutor_FailureTerminatesRunByDefault(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	a := writeInput(t, in, "a.txt", "x\n")

	steps := []pipeline.Step{
		{
			Name:       "boom",
			MapperCmd:  []string{"false"},
			ReducerCmd: []string{"cat"},
			TaskCount:  1,
			InputDirs:  []railurl.URL{a},
			OutputDir:  railurl.Classify(out),
		},
	}

	exec := newTestExecutor(t)
	err := exec.Run(context.Background(), pipeline.Pipeline{Steps: steps})
	require.Error(t, err)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr), "expected a *StepError, got %T: %v", err, err)
	assert.Equal(t, "boom", stepErr.Step)
	require.NotNil(t, stepErr.Err)
	assert.Equal(t, "boom", stepErr.Err.Step)
	assert.Equal(t, 1, stepErr.Err.ExitCode)
}
