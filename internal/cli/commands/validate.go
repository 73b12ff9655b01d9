// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"railrna/pkg/credentials"
	"railrna/pkg/executil"
	"railrna/pkg/railurl"
	"railrna/pkg/validate"
)

// NewValidateCommand returns the `railrna validate` command.
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a run's configuration before any work is staged",
		Long:  "Runs the pre-flight checks from the validation contract: manifest syntax, executables, reference indexes, numeric parameter domains, output location, and credentials.",
		RunE:  runValidate,
	}

	cmd.Flags().StringP("manifest", "m", "", "path to the sample manifest")
	cmd.Flags().StringP("output", "o", "", "output URL for the run's final results")
	cmd.Flags().Bool("force", false, "allow writing into an existing output location")
	cmd.Flags().Bool("preprocess", false, "the run includes a preprocessing step")
	cmd.Flags().String("profile", "", "named credential profile to validate against")
	addNumericsFlags(cmd)
	_ = cmd.MarkFlagRequired("manifest")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

// addNumericsFlags registers the numeric run parameters both validate and
// run accept, so a single invocation's flags can be checked by validate
// before the same flags drive run (spec.md §6).
func addNumericsFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("num-processes", "p", 1, "process-level parallelism per phase")
	cmd.Flags().Int("max-task-attempts", 1, "attempts allowed per task (first run included) before the step fails")
	cmd.Flags().BoolP("gzip-intermediates", "g", false, "gzip-compress map-phase output while it sits in scratch")
	cmd.Flags().Int("gzip-level", 6, "compression level (1-9) used when --gzip-intermediates is set")
	cmd.Flags().String("sort-memory-cap", "", "buffer-size cap passed to the external sort as -S (e.g. 2G, 50%)")
	cmd.Flags().Bool("keep-intermediates", false, "do not delete scratch files after a step completes")
}

// numericsFromFlags builds the NumericParams addNumericsFlags' values
// imply, in the domains spec.md §8 scenario 1 names exactly.
func numericsFromFlags(cmd *cobra.Command) []validate.NumericParam {
	numProcesses, _ := cmd.Flags().GetInt("num-processes")
	maxTaskAttempts, _ := cmd.Flags().GetInt("max-task-attempts")
	gzipLevel, _ := cmd.Flags().GetInt("gzip-level")

	return []validate.NumericParam{
		{
			Name:     "num-processes",
			Value:    float64(numProcesses),
			Domain:   "an integer >= 1",
			Admitted: validate.PositiveInt,
		},
		{
			Name:     "max-task-attempts",
			Value:    float64(maxTaskAttempts),
			Domain:   "an integer greater than 0",
			Admitted: validate.PositiveInt,
		},
		{
			Name:     "gzip-level",
			Value:    float64(gzipLevel),
			Domain:   "an integer between 1 and 9",
			Admitted: validate.ClosedInterval(1, 9),
		},
	}
}

func runValidate(cmd *cobra.Command, _ []string) error {
	flags := ResolveFlags(cmd)

	manifestPath, _ := cmd.Flags().GetString("manifest")
	outputFlag, _ := cmd.Flags().GetString("output")
	force, _ := cmd.Flags().GetBool("force")
	preprocess, _ := cmd.Flags().GetBool("preprocess")
	profile, _ := cmd.Flags().GetString("profile")

	// A missing manifest is itself a reportable error (spec.md §8 scenario
	// 1), not grounds to abort before the numeric checks below ever run.
	// Feed an empty reader through in that case so manifest.Parse
	// contributes no error of its own, and add the "does not exist" error
	// ourselves so it lands in the same Report as the numeric failures.
	var manifestReader io.Reader
	var manifestMissing error
	manifestFile, err := os.Open(manifestPath)
	if err != nil {
		manifestMissing = fmt.Errorf("Manifest file %s does not exist", manifestPath)
		manifestReader = strings.NewReader("")
	} else {
		defer manifestFile.Close()
		manifestReader = manifestFile
	}

	backend := validate.Backend(flags.Backend)
	runner := executil.NewRunner()

	cfg := validate.Config{
		Backend:           backend,
		Force:             force,
		OutputURL:         railurl.Classify(outputFlag),
		ManifestReader:    manifestReader,
		PreprocessMode:    preprocess,
		Numerics:          numericsFromFlags(cmd),
		CredentialProfile: profile,
		Runner:            runner,
		Mover:             railurl.NewMover(runner),
		Resolver:          credentials.NewResolver(os.Getenv("RAILRNA_CREDENTIALS_FILE")),
	}

	report, err := validate.Validate(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	if manifestMissing != nil {
		report.Errors = append([]error{manifestMissing}, report.Errors...)
	}

	if report.HasErrors() {
		return report
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "validate: configuration is clean")
	return nil
}
