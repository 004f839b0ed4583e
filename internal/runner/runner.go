package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"benchmark-verifier/internal/benchmark"
	"benchmark-verifier/internal/testtypes"
	"benchmark-verifier/internal/verification"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Job is one endpoint to verify with the executor of its test type.
type Job struct {
	Name     string
	URL      string
	Executor testtypes.Executor
}

type Result struct {
	ID       uuid.UUID
	Name     string
	URL      string
	Commands *benchmark.BenchmarkCommands
	// Database holds what waiting for the database recorded; it is empty when the
	// database came up in time.
	Database *verification.Messages
	Messages *verification.Messages
	Elapsed  time.Duration
}

func (r *Result) Passed() bool {
	return r.Messages != nil && r.Messages.Passed() && (r.Database == nil || r.Database.Passed())
}

// Run waits for the database, retrieves the load-generator commands and verifies the
// endpoint. Only configuration errors are returned.
func Run(ctx context.Context, job Job, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("test", job.Name, "url", job.URL)
	start := time.Now()

	result := &Result{
		ID:       uuid.New(),
		Name:     job.Name,
		URL:      job.URL,
		Database: verification.NewMessages(job.URL),
	}

	// An unavailable database is recorded; the endpoint checks still run.
	if err := job.Executor.WaitForDatabaseToBeAvailable(ctx, result.Database); err != nil {
		logger.Warn("database unavailable", "error", err)
	}

	commands, err := job.Executor.RetrieveBenchmarkCommands(job.URL)
	if err != nil {
		return nil, err
	}
	result.Commands = commands

	logger.Debug("verifying endpoint")
	messages, err := job.Executor.Verify(ctx, job.URL)
	if err != nil {
		return nil, err
	}
	result.Messages = messages
	result.Elapsed = time.Since(start)

	logger.Info("verification finished", "passed", result.Passed(),
		"errors", messages.Count(verification.SeverityError),
		"warnings", messages.Count(verification.SeverityWarning),
		"elapsed", result.Elapsed)
	return result, nil
}

// RunAll verifies jobs with at most parallel in flight. Results keep the order of jobs;
// a job that failed with a configuration error leaves a nil entry and its error is
// joined into the returned error.
func RunAll(ctx context.Context, jobs []Job, parallel int, logger *slog.Logger) ([]*Result, error) {
	if parallel < 1 {
		parallel = 1
	}
	results := make([]*Result, len(jobs))
	errs := make([]error, len(jobs))

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			results[i], errs[i] = Run(ctx, job, logger)
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}
