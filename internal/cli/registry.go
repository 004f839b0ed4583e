package cli

import (
	"fmt"
	"log/slog"
	"sort"

	"benchmark-verifier/internal/config"
	"benchmark-verifier/internal/database"
	"benchmark-verifier/internal/request"
	"benchmark-verifier/internal/runner"
	"benchmark-verifier/internal/testtypes"
	"benchmark-verifier/internal/testtypes/fortune"
	"benchmark-verifier/internal/testtypes/query"
	"benchmark-verifier/internal/verification"
)

// Engines lists the supported database engines.
var Engines = []string{"mongo", "mysql", "postgres"}

var testTypes = map[string]func(testtypes.Base) testtypes.Executor{
	"cached_query": func(b testtypes.Base) testtypes.Executor { return &query.CachedQuery{Base: b} },
	"query":        func(b testtypes.Base) testtypes.Executor { return &query.Query{Base: b} },
	"update":       func(b testtypes.Base) testtypes.Executor { return &query.Update{Base: b} },
	"fortune":      func(b testtypes.Base) testtypes.Executor { return &fortune.Fortune{Base: b} },
}

// TestTypes returns the registered test type names, sorted.
func TestTypes() []string {
	names := make([]string, 0, len(testTypes))
	for name := range testTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewVerifier returns the verifier for engine connected through dsn.
func NewVerifier(engine, dsn string, wait database.WaitPolicy, logger *slog.Logger) (database.DatabaseVerifier, error) {
	if dsn == "" {
		return nil, &verification.ConfigurationError{Field: "databases." + engine, Reason: "no DSN configured"}
	}
	switch engine {
	case "mysql":
		v := database.NewMySQLVerifier(dsn)
		v.Wait, v.Logger = wait, logger
		return v, nil
	case "postgres":
		v := database.NewPostgresVerifier(dsn)
		v.Wait, v.Logger = wait, logger
		return v, nil
	case "mongo":
		v := database.NewMongoVerifier(dsn)
		v.Wait, v.Logger = wait, logger
		return v, nil
	}
	return nil, &verification.ConfigurationError{Field: "database", Reason: fmt.Sprintf("unsupported engine %q, must be one of %v", engine, Engines)}
}

// NewExecutor returns the executor for testType.
func NewExecutor(testType string, base testtypes.Base) (testtypes.Executor, error) {
	newExec, ok := testTypes[testType]
	if !ok {
		return nil, &verification.ConfigurationError{Field: "type", Reason: fmt.Sprintf("unsupported test type %q, must be one of %v", testType, TestTypes())}
	}
	return newExec(base), nil
}

// BuildJobs turns configured tests into runner jobs sharing one HTTP client.
func BuildJobs(cfg *config.Config, tests []config.Test, logger *slog.Logger) ([]runner.Job, error) {
	timeout, err := cfg.RequestTimeout()
	if err != nil {
		return nil, err
	}
	wait, err := cfg.WaitPolicy()
	if err != nil {
		return nil, err
	}
	client := request.NewClient(timeout)

	jobs := make([]runner.Job, 0, len(tests))
	for _, t := range tests {
		var db database.DatabaseVerifier
		if t.Database != "" {
			db, err = NewVerifier(t.Database, cfg.Databases.DSN(t.Database), wait, logger)
			if err != nil {
				return nil, err
			}
		}

		base := testtypes.NewBase(cfg.BenchmarkSettings.ConcurrencyLevels, db, client)
		base.Settings = cfg.Settings()
		base.Logger = logger.With("test", t.Name)

		exec, err := NewExecutor(t.Type, base)
		if err != nil {
			return nil, fmt.Errorf("test %s: %w", t.Name, err)
		}
		jobs = append(jobs, runner.Job{Name: t.Name, URL: t.URL, Executor: exec})
	}
	return jobs, nil
}

// selectTests returns the tests named in names, or all of them when names is empty.
func selectTests(all []config.Test, names []string) ([]config.Test, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]config.Test, len(all))
	for _, t := range all {
		byName[t.Name] = t
	}
	selected := make([]config.Test, 0, len(names))
	for _, name := range names {
		t, ok := byName[name]
		if !ok {
			return nil, &verification.ConfigurationError{Field: "tests", Reason: fmt.Sprintf("no test named %q", name)}
		}
		selected = append(selected, t)
	}
	return selected, nil
}
