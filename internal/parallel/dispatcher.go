// SPDX-License-Identifier: AGPL-3.0-or-later

package parallel

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"railrna/pkg/logging"
)

// Dispatcher prepares and drives a pool of Engines through spec.md §4.6's
// five-step sequence.
type Dispatcher struct {
	Executor CommandExecutor
	Logger   logging.Logger

	// Concurrency bounds in-flight per-engine operations during probe,
	// distribution and the second validator pass.
	Concurrency int
}

// NewDispatcher builds a Dispatcher. A nil Executor defaults to NoopExecutor.
func NewDispatcher(executor CommandExecutor, logger logging.Logger) *Dispatcher {
	if executor == nil {
		executor = NoopExecutor{}
	}
	if logger == nil {
		logger = logging.NewLogger(false)
	}
	return &Dispatcher{Executor: executor, Logger: logger, Concurrency: 8}
}

func (d *Dispatcher) concurrency() int {
	if d.Concurrency < 1 {
		return 1
	}
	return d.Concurrency
}

// ProbeIntermediateDir is step 1: write a randomly named probe file and
// verify every engine can see it, proving shared visibility of the
// intermediate directory before any work is staged.
func (d *Dispatcher) ProbeIntermediateDir(ctx context.Context, engines []Engine, intermediateDir string) error {
	token, err := randomToken()
	if err != nil {
		return fmt.Errorf("generating probe token: %w", err)
	}
	probePath := intermediateDir + "/.probe-" + token

	writer := engines[0]
	if _, _, err := d.Executor.Run(ctx, writer, fmt.Sprintf("touch %s", shellQuote(probePath))); err != nil {
		return fmt.Errorf("writing probe file from %s: %w", writer.ID, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency())
	for _, e := range engines {
		e := e
		g.Go(func() error {
			if _, _, err := d.Executor.Run(gctx, e, fmt.Sprintf("test -e %s", shellQuote(probePath))); err != nil {
				return fmt.Errorf("engine %s cannot see intermediate directory: %w", e.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ElectCopiers is step 2: group engines by host and elect the
// lexicographically-first engine ID on each host as that host's copier.
// Deterministic election keeps repeated runs reproducible.
func ElectCopiers(engines []Engine) map[string]Engine {
	byHost := map[string]Engine{}
	for _, e := range engines {
		current, ok := byHost[e.Host]
		if !ok || e.ID < current.ID {
			byHost[e.Host] = e
		}
	}
	return byHost
}

// WatchdogScript is step 3's cleanup guarantee: a shell loop that records
// the PID of the process that started it, polls that PID with kill -0
// every 5 seconds, and removes scratchDir once the process no longer
// exists.
func WatchdogScript(scratchDir string) string {
	return fmt.Sprintf(`
ppid=$(ps -o ppid= -p $$ | tr -d ' ')
while kill -0 "$ppid" 2>/dev/null; do
  sleep 5
done
rm -rf %s
`, shellQuote(scratchDir))
}

// SpawnWatchdog runs WatchdogScript on engine in the background (detached
// via nohup+&, so it survives the SSH session dying along with its
// parent).
func (d *Dispatcher) SpawnWatchdog(ctx context.Context, engine Engine, scratchDir string) error {
	cmd := fmt.Sprintf("nohup sh -c %s >/dev/null 2>&1 &", shellQuote(WatchdogScript(scratchDir)))
	_, _, err := d.Executor.Run(ctx, engine, cmd)
	return err
}

// DistributionAsset is one file the dispatcher must copy to every host's
// scratch directory: the code archive, the manifest, or a reference index.
type DistributionAsset struct {
	Name       string
	LocalPath  string
	RemoteName string
}

// Distribute is step 4: copy every asset to each host's copier engine,
// preferring a tree-based distribution helper when available (rsync),
// falling back to per-engine scp. Parallelized across hosts with errgroup,
// grounded on the teacher's bootstrap.Service.Bootstrap loop generalized
// from sequential to bounded-concurrent.
func (d *Dispatcher) Distribute(ctx context.Context, copiers map[string]Engine, assets []DistributionAsset, treeCmd string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency())

	for host, engine := range copiers {
		host, engine := host, engine
		g.Go(func() error {
			for _, asset := range assets {
				if err := d.copyAsset(gctx, engine, asset, treeCmd); err != nil {
					return fmt.Errorf("host %s: distributing %s: %w", host, asset.Name, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Dispatcher) copyAsset(ctx context.Context, engine Engine, asset DistributionAsset, treeCmd string) error {
	dest := strings.TrimRight(engine.ScratchDir, "/") + "/" + asset.RemoteName
	cmd := treeCmd
	if cmd == "" {
		cmd = "scp"
	}
	shellCmd := fmt.Sprintf("%s %s %s:%s", cmd, shellQuote(asset.LocalPath), engine.Host, shellQuote(dest))
	_, _, err := d.Executor.Run(ctx, engine, shellCmd)
	return err
}

// ValidationOutcome pairs an engine with the error its second validator
// pass produced, if any.
type ValidationOutcome struct {
	Engine Engine
	Err    error
}

// GroupedError collapses identical per-engine validation failures into
// one message naming every affected engine, so a host-class-wide problem
// (e.g. a tool missing from every worker's image) is reported once.
type GroupedError struct {
	Message string
	Engines []string
}

func (g GroupedError) Error() string {
	return fmt.Sprintf("%s (engines: %s)", g.Message, strings.Join(g.Engines, ", "))
}

// RunSecondValidatorPass is step 5: fan the given per-engine check out to
// every engine and group identical failures.
func (d *Dispatcher) RunSecondValidatorPass(ctx context.Context, engines []Engine, check func(context.Context, Engine) error) []GroupedError {
	outcomes := make([]ValidationOutcome, len(engines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency())
	for i, e := range engines {
		i, e := i, e
		g.Go(func() error {
			outcomes[i] = ValidationOutcome{Engine: e, Err: check(gctx, e)}
			return nil
		})
	}
	_ = g.Wait() // per-engine errors are collected in outcomes, not propagated

	byMessage := map[string][]string{}
	order := []string{}
	for _, o := range outcomes {
		if o.Err == nil {
			continue
		}
		msg := o.Err.Error()
		if _, seen := byMessage[msg]; !seen {
			order = append(order, msg)
		}
		byMessage[msg] = append(byMessage[msg], o.Engine.ID)
	}

	grouped := make([]GroupedError, 0, len(order))
	for _, msg := range order {
		grouped = append(grouped, GroupedError{Message: msg, Engines: byMessage[msg]})
	}
	return grouped
}

func randomToken() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
