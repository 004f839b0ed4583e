package cli

import (
	"context"
	"errors"
	"fmt"

	"benchmark-verifier/internal/config"
	"benchmark-verifier/internal/runner"
	"benchmark-verifier/internal/verification"
	"github.com/spf13/cobra"
)

// ErrVerificationFailed is returned when at least one endpoint has an error finding.
var ErrVerificationFailed = errors.New("verification failed")

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	var adhoc config.Test

	cmd := &cobra.Command{
		Use:   "verify [test-name...]",
		Short: "Verify configured endpoints",
		Long: `Verify every configured test, or only the named ones. With --url a single
endpoint is verified instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), rootOpts, adhoc, args)
		},
	}

	cmd.Flags().StringVar(&adhoc.URL, "url", "", "verify this endpoint instead of the configured tests")
	cmd.Flags().StringVar(&adhoc.Type, "type", "cached_query", "test type of --url")
	cmd.Flags().StringVar(&adhoc.Database, "database", "", "database engine behind --url")

	return cmd
}

// testsFor returns the ad-hoc test when it has a URL, otherwise the selected configured tests.
func testsFor(cfg *config.Config, adhoc config.Test, names []string) ([]config.Test, error) {
	if adhoc.URL != "" {
		if len(names) > 0 {
			return nil, &verification.ConfigurationError{Field: "url", Reason: "cannot be combined with test names"}
		}
		adhoc.Name = adhoc.Type
		return []config.Test{adhoc}, nil
	}

	tests, err := selectTests(cfg.Tests, names)
	if err != nil {
		return nil, err
	}
	if len(tests) == 0 {
		return nil, &verification.ConfigurationError{Field: "tests", Reason: "no tests configured"}
	}
	return tests, nil
}

func runVerify(ctx context.Context, opts *RootOptions, adhoc config.Test, names []string) error {
	tests, err := testsFor(opts.Config, adhoc, names)
	if err != nil {
		return err
	}
	jobs, err := BuildJobs(opts.Config, tests, opts.Logger)
	if err != nil {
		return err
	}

	results, runErr := runner.RunAll(ctx, jobs, opts.Config.BenchmarkSettings.Parallel, opts.Logger)

	failed := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		Report(opts.Report, r, opts.Config.Log.Quiet)
		if !r.Passed() {
			failed++
		}
	}

	if runErr != nil {
		return runErr
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d endpoints", ErrVerificationFailed, failed, len(results))
	}
	return nil
}
