// SPDX-License-Identifier: AGPL-3.0-or-later

// Package validate runs the pre-flight checks a run must pass before any
// Step executes: output location sanity, manifest shape, executable and
// index-file discovery, numeric parameter domains, and credentials.
// Every check but two accumulates into a Report instead of aborting, so a
// user sees every problem in one pass (spec.md §4.2).
package validate

import (
	"context"
	"fmt"
	"io"
	"os"

	"railrna/pkg/credentials"
	"railrna/pkg/executil"
	"railrna/pkg/manifest"
	"railrna/pkg/railurl"
)

// Backend names which executor will run the validated configuration;
// check 1 and check 4 branch on it.
type Backend string

const (
	BackendLocal    Backend = "local"
	BackendParallel Backend = "parallel"
	BackendCluster  Backend = "cluster"
)

// Report accumulates every non-fatal validation error. Checks 1-6 append
// to it and keep going; only credential and HTTP-client discovery abort
// immediately, since the remaining checks cannot proceed without them.
type Report struct {
	Errors []error
}

// Add appends err to the report if err is non-nil.
func (r *Report) Add(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err)
	}
}

// HasErrors reports whether any check failed.
func (r *Report) HasErrors() bool {
	return len(r.Errors) > 0
}

func (r *Report) Error() string {
	if !r.HasErrors() {
		return "validate: no errors"
	}
	msg := fmt.Sprintf("validate: %d error(s):", len(r.Errors))
	for _, e := range r.Errors {
		msg += "\n  - " + e.Error()
	}
	return msg
}

// Executable is one declared external-tool dependency: a logical name
// (e.g. "bowtie2-build") and an optional user-supplied path.
type Executable struct {
	Name       string
	UserPath   string
	ClusterAbs string // known-good absolute path baked into the worker image
}

// IndexSpec names a reference index's base path and the file extensions
// that must all exist for the index to be usable.
type IndexSpec struct {
	Name       string
	Base       railurl.URL
	Extensions []string
}

// NumericParam is one numeric flag plus the domain its value must fall in.
type NumericParam struct {
	Name     string
	Value    float64
	Domain   string // human-readable description used in error messages
	Admitted func(float64) bool
}

// Config bundles everything a single validation pass needs.
type Config struct {
	Backend Backend
	Force   bool

	OutputURL railurl.URL

	ManifestReader io.Reader
	PreprocessMode bool

	Executables []Executable
	Indexes     []IndexSpec
	Numerics    []NumericParam

	CredentialProfile string

	Runner       executil.Runner
	Mover        *railurl.Mover
	Resolver     *credentials.Resolver
	AssetURLs    []railurl.URL // every user-named asset, for credential/HTTP-client checks
}

// Validate runs checks 1-7 from spec.md §4.2: the two immediate-raise
// checks (check 7 and HTTP-client discovery) first, then checks 1-6 in
// order. A non-nil error
// return means an immediate-raise check failed (credentials or HTTP
// client); the Report is nil in that case since the remaining checks
// never ran. Otherwise Validate always returns a Report, which may or may
// not HasErrors().
func Validate(ctx context.Context, cfg Config) (*Report, error) {
	report := &Report{}

	// Check 7 runs first among the immediate-raise checks: without
	// credentials/an HTTP client nothing else that touches those assets
	// can be validated either.
	if err := checkCredentials(cfg); err != nil {
		return nil, err
	}
	if err := checkHTTPClient(ctx, cfg); err != nil {
		return nil, err
	}

	checkOutputLocation(ctx, cfg, report)
	checkManifest(cfg, report)
	if cfg.PreprocessMode {
		checkManifestAssetsExist(ctx, cfg, report)
	}
	checkExecutables(ctx, cfg, report)
	checkIndexes(ctx, cfg, report)
	checkNumerics(cfg, report)

	return report, nil
}

// checkOutputLocation is spec.md §4.2 check 1: the output URL's variant
// must suit the backend, and an existing output directory requires --force.
func checkOutputLocation(ctx context.Context, cfg Config, report *Report) {
	switch cfg.Backend {
	case BackendCluster:
		if cfg.OutputURL.Variant != railurl.VariantObjectStore {
			report.Add(fmt.Errorf("output %s: cluster backend requires an object-store location", cfg.OutputURL.Display()))
		}
	default:
		if cfg.OutputURL.Variant != railurl.VariantLocal && cfg.OutputURL.Variant != railurl.VariantObjectStore {
			report.Add(fmt.Errorf("output %s: backend requires a local or object-store location", cfg.OutputURL.Display()))
		}
	}

	if cfg.Mover == nil {
		return
	}
	exists, err := cfg.Mover.Exists(ctx, cfg.OutputURL)
	if err != nil {
		report.Add(fmt.Errorf("output %s: checking existence: %w", cfg.OutputURL.Display(), err))
		return
	}
	if exists && !cfg.Force {
		report.Add(fmt.Errorf("output %s already exists; pass --force to overwrite", cfg.OutputURL.Display()))
	}
}

// checkManifest is spec.md §4.2 check 2: the manifest must be reachable
// and every line well-shaped. Parse errors are individually appended,
// preserving manifest.Parse's own accumulate-and-continue behavior.
func checkManifest(cfg Config, report *Report) (*manifest.Manifest, bool) {
	if cfg.ManifestReader == nil {
		report.Add(fmt.Errorf("manifest: no reader configured"))
		return nil, false
	}
	m, errs := manifest.Parse(cfg.ManifestReader)
	for _, e := range errs {
		report.Add(e)
	}
	return m, len(errs) == 0
}

// checkManifestAssetsExist is spec.md §4.2 check 3, performed only in
// preprocess mode: every file the manifest names must exist.
func checkManifestAssetsExist(ctx context.Context, cfg Config, report *Report) {
	if cfg.Mover == nil {
		return
	}
	for _, u := range cfg.AssetURLs {
		exists, err := cfg.Mover.Exists(ctx, u)
		if err != nil {
			report.Add(fmt.Errorf("asset %s: checking existence: %w", u.Display(), err))
			continue
		}
		if !exists {
			report.Add(fmt.Errorf("asset %s: not found", u.Display()))
		}
	}
}

// checkExecutables is spec.md §4.2 check 4: every declared dependency must
// resolve to an executable file, either a user-supplied path, a same-named
// binary on PATH, or — on the cluster backend — a known-good absolute path.
func checkExecutables(ctx context.Context, cfg Config, report *Report) {
	for _, exe := range cfg.Executables {
		if cfg.Backend == BackendCluster && exe.ClusterAbs != "" {
			continue
		}
		if exe.UserPath != "" {
			if err := checkExecutableFile(exe.UserPath); err != nil {
				report.Add(fmt.Errorf("executable %q: %w", exe.Name, err))
			}
			continue
		}
		if err := checkExecutableOnPath(ctx, cfg.Runner, exe.Name); err != nil {
			report.Add(fmt.Errorf("executable %q: %w", exe.Name, err))
		}
	}
}

func checkExecutableFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func checkExecutableOnPath(ctx context.Context, runner executil.Runner, name string) error {
	if runner == nil {
		return fmt.Errorf("no runner configured to search PATH for %s", name)
	}
	if _, err := runner.Run(ctx, executil.NewCommand("sh", "-c", "command -v "+name)); err != nil {
		return fmt.Errorf("not found on PATH: %w", err)
	}
	return nil
}

// checkIndexes is spec.md §4.2 check 5: every extension that defines a
// reference index must exist alongside the index's base path.
func checkIndexes(ctx context.Context, cfg Config, report *Report) {
	if cfg.Mover == nil {
		return
	}
	for _, idx := range cfg.Indexes {
		for _, ext := range idx.Extensions {
			u := railurl.URL{Variant: idx.Base.Variant, Raw: idx.Base.Raw + ext}
			exists, err := cfg.Mover.Exists(ctx, u)
			if err != nil {
				report.Add(fmt.Errorf("index %q: checking %s: %w", idx.Name, ext, err))
				continue
			}
			if !exists {
				report.Add(fmt.Errorf("index %q: missing file with extension %q (%s)", idx.Name, ext, u.Display()))
			}
		}
	}
}

// checkNumerics is spec.md §4.2 check 6: each numeric parameter has an
// explicit admissible domain; a violation names the flag precisely.
func checkNumerics(cfg Config, report *Report) {
	for _, p := range cfg.Numerics {
		if p.Admitted == nil {
			continue
		}
		if !p.Admitted(p.Value) {
			report.Add(fmt.Errorf("%s must be %s, but %v was entered", p.Name, p.Domain, p.Value))
		}
	}
}

// checkCredentials is spec.md §4.2 check 7, immediate-raise: if any named
// asset lives in the object store, credentials must resolve now.
func checkCredentials(cfg Config) error {
	needsCreds := false
	for _, u := range cfg.AssetURLs {
		if u.Variant == railurl.VariantObjectStore {
			needsCreds = true
			break
		}
	}
	if cfg.OutputURL.Variant == railurl.VariantObjectStore {
		needsCreds = true
	}
	if !needsCreds {
		return nil
	}
	if cfg.Resolver == nil {
		return fmt.Errorf("object-store assets present but no credential resolver configured: %w", credentials.ErrMissingCredentials)
	}
	_, err := cfg.Resolver.Resolve(cfg.CredentialProfile)
	return err
}

// checkHTTPClient is the second immediate-raise check: if any named asset
// or the index set uses the http/ftp variant, curl (the helper ops.go
// shells out to) must be reachable, since check 3 and check 5 depend on it.
func checkHTTPClient(ctx context.Context, cfg Config) error {
	needsHTTP := false
	for _, u := range cfg.AssetURLs {
		if u.Variant == railurl.VariantHTTP || u.Variant == railurl.VariantFTP {
			needsHTTP = true
			break
		}
	}
	for _, idx := range cfg.Indexes {
		if idx.Base.Variant == railurl.VariantHTTP || idx.Base.Variant == railurl.VariantFTP {
			needsHTTP = true
			break
		}
	}
	if !needsHTTP {
		return nil
	}
	if err := checkExecutableOnPath(ctx, cfg.Runner, "curl"); err != nil {
		return fmt.Errorf("http/ftp assets present but curl is unavailable: %w", err)
	}
	return nil
}

// Numeric domain helpers, shared across callers building Config.Numerics.

// PositiveInt admits strictly positive integral values.
func PositiveInt(v float64) bool {
	return v > 0 && v == float64(int64(v))
}

// NonNegativeInt admits zero or positive integral values.
func NonNegativeInt(v float64) bool {
	return v >= 0 && v == float64(int64(v))
}

// OpenInterval admits values strictly between lo and hi.
func OpenInterval(lo, hi float64) func(float64) bool {
	return func(v float64) bool { return v > lo && v < hi }
}

// ClosedInterval admits values in [lo, hi].
func ClosedInterval(lo, hi float64) func(float64) bool {
	return func(v float64) bool { return v >= lo && v <= hi }
}

// Enum admits only the listed values.
func Enum(values ...float64) func(float64) bool {
	return func(v float64) bool {
		for _, a := range values {
			if a == v {
				return true
			}
		}
		return false
	}
}
