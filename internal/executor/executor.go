// SPDX-License-Identifier: AGPL-3.0-or-later

// Package executor runs a compiled pipeline.Pipeline sequentially,
// driving each Step through its map, shuffle, partition and reduce
// phases with process-level concurrency only (spec.md §4.4, §5).
package executor

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nightlyone/lockfile"
	"golang.org/x/sync/errgroup"

	"railrna/pkg/executil"
	"railrna/pkg/logging"
	"railrna/pkg/pipeline"
	"railrna/pkg/railurl"
	"railrna/pkg/shuffle"
)

// tailCaptureSize bounds how much of a failed task's output StepError
// quotes back to the operator.
const tailCaptureSize = 4096

// tailCapture is an io.Writer that remembers only the last N bytes
// written to it, for surfacing in a TaskError without buffering an
// entire (potentially huge) mapper/reducer stream.
type tailCapture struct {
	buf []byte
	max int
}

func newTailCapture(max int) *tailCapture {
	return &tailCapture{max: max}
}

func (t *tailCapture) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailCapture) String() string {
	return string(t.buf)
}

// Options configures a single Executor instance.
type Options struct {
	// Concurrency bounds in-flight mapper/reducer processes per phase
	// (spec.md's P_user).
	Concurrency int

	// ScratchDir is where per-step intermediate files and lockfiles live.
	ScratchDir string

	// SortCmd is the external sort binary (spec.md §4.4: "the only shuffle mechanism").
	SortCmd string

	MaxTaskAttempts int

	// GzipIntermediates compresses each mapper task's output file on its
	// way to scratch (spec.md §6's --gzip-intermediates). Shuffle still
	// sorts plaintext; only the at-rest map-output file is gzipped.
	GzipIntermediates bool
	// GzipLevel is the compress/gzip level used when GzipIntermediates is
	// set. Zero falls back to gzip.DefaultCompression.
	GzipLevel int
	// SortMemoryCap is passed straight through to the external sort as
	// its -S buffer-size argument (e.g. "2G", "50%"); empty leaves sort's
	// own default in effect.
	SortMemoryCap string
	// KeepIntermediates skips the post-step scratch cleanup, leaving a
	// step's map/shuffle/bucket files on disk for inspection.
	KeepIntermediates bool

	Runner executil.Runner
	Mover  *railurl.Mover
	Logger logging.Logger
}

// Executor runs compiled Steps.
type Executor struct {
	opts Options
}

// New builds an Executor, filling in conventional defaults for any
// unset option.
func New(opts Options) *Executor {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.SortCmd == "" {
		opts.SortCmd = "sort"
	}
	if opts.MaxTaskAttempts < 1 {
		opts.MaxTaskAttempts = 1
	}
	if opts.Runner == nil {
		opts.Runner = executil.NewRunner()
	}
	if opts.Mover == nil {
		opts.Mover = railurl.NewMover(opts.Runner)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger(false)
	}
	return &Executor{opts: opts}
}

// Run executes every Step in pipe, strictly in order (spec.md §5 ordering
// guarantee 1). A Step's failure under FailureTerminateAll stops the run;
// FailureContinue logs and moves on; FailureCancelWait waits for already
// in-flight tasks to drain (modeled here identically to terminate-all,
// since the Executor never starts a later Step's tasks early regardless).
func (e *Executor) Run(ctx context.Context, pipe pipeline.Pipeline) error {
	for _, step := range pipe.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := e.runStep(ctx, step)
		if err == nil {
			continue
		}

		e.opts.Logger.Error("step failed", logging.Step(step.Name), logging.Field{Key: "error", Value: err.Error()})

		if step.FailurePolicy == pipeline.FailureContinue {
			continue
		}
		return err
	}
	return nil
}

// runStep drives one Step through map, shuffle, partition and reduce.
func (e *Executor) runStep(ctx context.Context, step pipeline.Step) error {
	scratch := filepath.Join(e.opts.ScratchDir, sanitize(step.Name))
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}

	lock, err := e.lockScratch(scratch)
	if err != nil {
		return err
	}
	defer lock.Unlock() //nolint:errcheck // best-effort: a killed process leaves the lockfile for the next run to find

	defer func() {
		if ctx.Err() != nil {
			// Cancellation: remove scratch belonging to the current step.
			// Steps already completed are left untouched (spec.md §4.4).
			_ = os.RemoveAll(scratch)
			return
		}
		if !e.opts.KeepIntermediates {
			_ = os.RemoveAll(scratch)
		}
	}()

	mapOutputs, err := e.mapPhase(ctx, step, scratch)
	if err != nil {
		return asStepError(step.Name, err)
	}

	buckets, err := e.shuffleAndPartition(ctx, step, mapOutputs, scratch)
	if err != nil {
		return fmt.Errorf("shuffle phase: %w", err)
	}

	if err := e.reducePhase(ctx, step, buckets); err != nil {
		return asStepError(step.Name, err)
	}

	return nil
}

// mapPhase spawns up to Concurrency mapper processes, one per input, each
// streaming its input through step.MapperCmd into its own scratch file.
func (e *Executor) mapPhase(ctx context.Context, step pipeline.Step, scratch string) ([]string, error) {
	outputs := make([]string, len(step.InputDirs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for i, in := range step.InputDirs {
		i, in := i, in
		g.Go(func() error {
			ext := ".out"
			if e.opts.GzipIntermediates {
				ext = ".out.gz"
			}
			outPath := filepath.Join(scratch, fmt.Sprintf("map-%04d%s", i, ext))
			err := retryTask(gctx, DefaultRetryConfig(e.opts.MaxTaskAttempts), func(int) error {
				return e.runMapTask(gctx, step, i, in, outPath)
			})
			if err != nil {
				return err
			}
			outputs[i] = outPath
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

func (e *Executor) runMapTask(ctx context.Context, step pipeline.Step, taskIndex int, in railurl.URL, outPath string) error {
	if len(step.MapperCmd) == 0 {
		return fmt.Errorf("step %q: empty mapper command", step.Name)
	}

	var stdin *os.File
	if in.Variant == railurl.VariantLocal && !in.IsEmpty() {
		f, err := os.Open(in.Native()) //nolint:gosec // pipeline-controlled input path
		if err != nil {
			return fmt.Errorf("opening input %s: %w", in.Display(), err)
		}
		defer f.Close()
		stdin = f
	}

	out, err := os.Create(outPath) //nolint:gosec // scratch file under our own scratch dir
	if err != nil {
		return fmt.Errorf("creating map output: %w", err)
	}
	defer out.Close()

	var dest io.Writer = out
	var gz *gzip.Writer
	if e.opts.GzipIntermediates {
		gz, err = gzip.NewWriterLevel(out, clampGzipLevel(e.opts.GzipLevel))
		if err != nil {
			return fmt.Errorf("creating gzip writer: %w", err)
		}
		dest = gz
	}

	cmd := executil.NewCommand(step.MapperCmd[0], step.MapperCmd[1:]...)
	if stdin != nil {
		cmd.Stdin = stdin
	}

	tail := newTailCapture(tailCaptureSize)
	runErr := e.opts.Runner.RunStream(ctx, cmd, io.MultiWriter(dest, tail))
	if gz != nil {
		if cerr := gz.Close(); cerr != nil && runErr == nil {
			runErr = cerr
		}
	}
	if runErr != nil {
		return &TaskError{
			Step:       step.Name,
			TaskIndex:  taskIndex,
			ExitCode:   exitCodeOf(runErr),
			StderrTail: tail.String(),
			Err:        runErr,
		}
	}
	return nil
}

// clampGzipLevel maps an unset or out-of-range level to compress/gzip's
// own default rather than letting NewWriterLevel reject it outright.
func clampGzipLevel(level int) int {
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		return gzip.DefaultCompression
	}
	return level
}

// shuffleAndPartition runs the external sort over the concatenated mapper
// outputs (the only shuffle mechanism, spec.md §4.4) and splits the
// result into step.TaskCount buckets, preserving sort order within each
// (spec.md §3's aggregation contract).
func (e *Executor) shuffleAndPartition(ctx context.Context, step pipeline.Step, mapOutputs []string, scratch string) ([]string, error) {
	concatenated := filepath.Join(scratch, "concat.out")
	if err := concatFiles(mapOutputs, concatenated); err != nil {
		return nil, fmt.Errorf("concatenating mapper outputs: %w", err)
	}

	sorted := concatenated
	if step.IsReduce {
		sortedPath := filepath.Join(scratch, "sorted.out")
		if err := e.externalSort(ctx, concatenated, sortedPath, step.Shuffle); err != nil {
			return nil, err
		}
		sorted = sortedPath
	}

	taskCount := step.TaskCount
	if taskCount < 1 {
		taskCount = 1
	}

	bucketPaths := make([]string, taskCount)
	bucketFiles := make([]*os.File, taskCount)
	for i := range bucketPaths {
		bucketPaths[i] = filepath.Join(scratch, fmt.Sprintf("bucket-%04d.out", i))
		f, err := os.Create(bucketPaths[i]) //nolint:gosec // scratch file under our own scratch dir
		if err != nil {
			return nil, fmt.Errorf("creating bucket file: %w", err)
		}
		bucketFiles[i] = f
	}
	defer func() {
		for _, f := range bucketFiles {
			f.Close()
		}
	}()

	if !step.IsReduce {
		// No partition key: everything goes to the single implicit bucket.
		if err := appendFile(sorted, bucketFiles[0]); err != nil {
			return nil, err
		}
		return bucketPaths, nil
	}

	part := shuffle.NewPartitioner(shuffle.Config{K: step.Shuffle.K, P: step.Shuffle.P}, taskCount)
	in, err := os.Open(sorted) //nolint:gosec // scratch file under our own scratch dir
	if err != nil {
		return nil, err
	}
	defer in.Close()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		key := shuffle.SplitKey(line, step.Shuffle.P)
		bucket := part.Bucket(key)
		if _, err := fmt.Fprintln(bucketFiles[bucket], line); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading sorted stream: %w", err)
	}

	return bucketPaths, nil
}

// externalSort shells out to the configured sort(1)-compatible tool,
// keyed on fields 1..K (spec.md §4.4 step 2).
func (e *Executor) externalSort(ctx context.Context, inPath, outPath string, cfg pipeline.ShuffleConfig) error {
	in, err := os.Open(inPath) //nolint:gosec // scratch file under our own scratch dir
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(outPath) //nolint:gosec // scratch file under our own scratch dir
	if err != nil {
		return err
	}
	defer out.Close()

	args := []string{"-t", "\t"}
	if e.opts.SortMemoryCap != "" {
		args = append(args, "-S", e.opts.SortMemoryCap)
	}
	for i := 1; i <= cfg.K; i++ {
		args = append(args, "-k", fmt.Sprintf("%d,%d", i, i))
	}
	cmd := executil.NewCommand(e.opts.SortCmd, args...)
	cmd.Stdin = in
	// LC_ALL=C makes sort compare bytes, matching shuffle.Comparator.
	cmd.Env = map[string]string{"LC_ALL": "C"}
	return e.opts.Runner.RunStream(ctx, cmd, out)
}

// reducePhase spawns up to Concurrency reducer processes, one per bucket,
// writing each task's output beneath step.OutputDir.
func (e *Executor) reducePhase(ctx context.Context, step pipeline.Step, buckets []string) error {
	if err := os.MkdirAll(step.OutputDir.Native(), 0o755); err != nil && step.OutputDir.Variant == railurl.VariantLocal {
		return fmt.Errorf("creating output dir: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for i, bucket := range buckets {
		i, bucket := i, bucket
		g.Go(func() error {
			err := retryTask(gctx, DefaultRetryConfig(e.opts.MaxTaskAttempts), func(int) error {
				return e.runReduceTask(gctx, step, i, bucket)
			})
			return err
		})
	}

	return g.Wait()
}

func (e *Executor) runReduceTask(ctx context.Context, step pipeline.Step, taskIndex int, bucketPath string) error {
	if len(step.ReducerCmd) == 0 {
		return fmt.Errorf("step %q: empty reducer command", step.Name)
	}

	in, err := os.Open(bucketPath) //nolint:gosec // scratch file under our own scratch dir
	if err != nil {
		return fmt.Errorf("opening bucket: %w", err)
	}
	defer in.Close()

	outPath := filepath.Join(step.OutputDir.Native(), fmt.Sprintf("part-%05d", taskIndex))
	out, err := os.Create(outPath) //nolint:gosec // output path under the step's own output dir
	if err != nil {
		return fmt.Errorf("creating reducer output: %w", err)
	}
	defer out.Close()

	cmd := executil.NewCommand(step.ReducerCmd[0], step.ReducerCmd[1:]...)
	cmd.Stdin = in

	tail := newTailCapture(tailCaptureSize)
	if err := e.opts.Runner.RunStream(ctx, cmd, io.MultiWriter(out, tail)); err != nil {
		return &TaskError{
			Step:       step.Name,
			TaskIndex:  taskIndex,
			ExitCode:   exitCodeOf(err),
			StderrTail: tail.String(),
			Err:        err,
		}
	}
	return nil
}

func (e *Executor) lockScratch(dir string) (lockfile.Lockfile, error) {
	// lockfile.New requires an absolute path.
	abs, err := filepath.Abs(filepath.Join(dir, "scratch.lock"))
	if err != nil {
		return "", fmt.Errorf("resolving scratch lockfile path: %w", err)
	}
	lock, err := lockfile.New(abs)
	if err != nil {
		return "", fmt.Errorf("constructing scratch lockfile: %w", err)
	}
	if err := lock.TryLock(); err != nil {
		return "", fmt.Errorf("scratch directory %s is locked by another run: %w", dir, err)
	}
	return lock, nil
}

func concatFiles(paths []string, destPath string) error {
	dest, err := os.Create(destPath) //nolint:gosec // scratch file under our own scratch dir
	if err != nil {
		return err
	}
	defer dest.Close()

	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	for _, p := range sorted {
		if err := appendFile(p, dest); err != nil {
			return err
		}
	}
	return nil
}

func appendFile(srcPath string, dest *os.File) error {
	src, closeSrc, err := openMapOutput(srcPath)
	if err != nil {
		return err
	}
	defer closeSrc()

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if _, err := fmt.Fprintln(dest, scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// openMapOutput opens a map-phase scratch file, transparently decompressing
// it when GzipIntermediates wrote it as gzip: concatenation and sort always
// operate on plaintext, so gzip never leaks past the map-output stage.
func openMapOutput(path string) (io.Reader, func() error, error) {
	f, err := os.Open(path) //nolint:gosec // scratch file under our own scratch dir
	if err != nil {
		return nil, nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, f.Close, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("opening gzip stream %s: %w", path, err)
	}
	return gz, func() error {
		gzErr := gz.Close()
		fErr := f.Close()
		if gzErr != nil {
			return gzErr
		}
		return fErr
	}, nil
}

func sanitize(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
