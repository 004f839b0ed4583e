package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"benchmark-verifier/internal/benchmark"
	"benchmark-verifier/internal/database"
	"benchmark-verifier/internal/request"
	"benchmark-verifier/internal/verification"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfig names the config file when no path is given.
	EnvConfig = "VERIFIER_CONFIG"
	// EnvLogLevel overrides log.level.
	EnvLogLevel = "VERIFIER_LOG_LEVEL"

	DefaultPath = "config.yaml"
)

type Config struct {
	Databases         Databases         `yaml:"databases"`
	BenchmarkSettings BenchmarkSettings `yaml:"benchmark_settings"`
	DatabaseWait      DatabaseWait      `yaml:"database_wait"`
	Log               Log               `yaml:"log"`
	Tests             []Test            `yaml:"tests"`
}

type Databases struct {
	Postgres string `yaml:"postgres"`
	MySQL    string `yaml:"mysql"`
	Mongo    string `yaml:"mongo"`
}

// DSN returns the connection string configured for engine.
func (d Databases) DSN(engine string) string {
	switch engine {
	case "postgres":
		return d.Postgres
	case "mysql":
		return d.MySQL
	case "mongo":
		return d.Mongo
	}
	return ""
}

type BenchmarkSettings struct {
	ConcurrencyLevels []int `yaml:"concurrency_levels"`
	// Durations are whole seconds, as wrk takes them.
	PrimerDuration    int    `yaml:"primer_duration"`
	PrimerConcurrency int    `yaml:"primer_concurrency"`
	Duration          int    `yaml:"duration"`
	RequestTimeout    string `yaml:"request_timeout"`
	// Parallel is how many endpoints are verified at once.
	Parallel int `yaml:"parallel"`
	// Parallelism caps wrk threads; zero means the number of CPUs.
	Parallelism int `yaml:"parallelism"`
}

type DatabaseWait struct {
	Attempts int    `yaml:"attempts"`
	Interval string `yaml:"interval"`
}

type Log struct {
	File    string `yaml:"file"`
	Quiet   bool   `yaml:"quiet"`
	NoColor bool   `yaml:"no_color"`
	Level   string `yaml:"level"`
}

// Test is one endpoint to verify.
type Test struct {
	Name string `yaml:"name"`
	// Type is one of cached_query, query, update or fortune.
	Type     string `yaml:"type"`
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

func DefaultConfig() *Config {
	wait := database.DefaultWaitPolicy()
	return &Config{
		BenchmarkSettings: BenchmarkSettings{
			ConcurrencyLevels: []int{16, 32, 64, 128, 256, 512},
			PrimerDuration:    benchmark.PrimerDuration,
			PrimerConcurrency: benchmark.PrimerConcurrency,
			Duration:          benchmark.BenchmarkDuration,
			RequestTimeout:    request.DefaultTimeout.String(),
			Parallel:          1,
		},
		DatabaseWait: DatabaseWait{
			Attempts: wait.Attempts,
			Interval: wait.Interval.String(),
		},
		Log: Log{Level: "info"},
	}
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(file, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return config, nil
}

// Load reads path, or the file named by VERIFIER_CONFIG, or config.yaml. A missing
// default file yields the defaults; a missing explicit file is an error. Environment
// overrides are applied last.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		if env := os.Getenv(EnvConfig); env != "" {
			path, explicit = env, true
		} else {
			path = DefaultPath
		}
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		if !os.IsNotExist(err) || explicit {
			return nil, err
		}
		cfg = DefaultConfig()
	}

	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Log.Level = level
	}
	return cfg, nil
}

// Validate reports the first invalid setting as a *verification.ConfigurationError.
func (c *Config) Validate() error {
	s := c.BenchmarkSettings
	if len(s.ConcurrencyLevels) == 0 {
		return &verification.ConfigurationError{Field: "benchmark_settings.concurrency_levels", Reason: "must not be empty"}
	}
	for _, l := range s.ConcurrencyLevels {
		if l < 1 {
			return &verification.ConfigurationError{Field: "benchmark_settings.concurrency_levels", Reason: fmt.Sprintf("level %d is not positive", l)}
		}
	}
	if s.PrimerDuration < 1 || s.Duration < 1 {
		return &verification.ConfigurationError{Field: "benchmark_settings", Reason: "durations must be at least one second"}
	}
	if s.PrimerConcurrency < 1 {
		return &verification.ConfigurationError{Field: "benchmark_settings.primer_concurrency", Reason: "must be positive"}
	}
	if _, err := c.RequestTimeout(); err != nil {
		return err
	}
	if _, err := c.WaitPolicy(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return &verification.ConfigurationError{Field: "log.level", Reason: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}

	names := make(map[string]bool, len(c.Tests))
	for i, t := range c.Tests {
		field := fmt.Sprintf("tests[%d]", i)
		if t.Name == "" || t.URL == "" {
			return &verification.ConfigurationError{Field: field, Reason: "name and url are required"}
		}
		if names[t.Name] {
			return &verification.ConfigurationError{Field: field, Reason: fmt.Sprintf("duplicate test %q", t.Name)}
		}
		names[t.Name] = true
		if t.Database != "" && c.Databases.DSN(t.Database) == "" {
			return &verification.ConfigurationError{Field: field + ".database", Reason: fmt.Sprintf("no DSN configured for %q", t.Database)}
		}
	}
	return nil
}

func (c *Config) RequestTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.BenchmarkSettings.RequestTimeout)
	if err != nil || d <= 0 {
		return 0, &verification.ConfigurationError{Field: "benchmark_settings.request_timeout", Reason: fmt.Sprintf("invalid duration %q", c.BenchmarkSettings.RequestTimeout)}
	}
	return d, nil
}

func (c *Config) WaitPolicy() (database.WaitPolicy, error) {
	d, err := time.ParseDuration(c.DatabaseWait.Interval)
	if err != nil || d < 0 || c.DatabaseWait.Attempts < 1 {
		return database.WaitPolicy{}, &verification.ConfigurationError{Field: "database_wait", Reason: "attempts must be positive and interval a valid duration"}
	}
	return database.WaitPolicy{Attempts: c.DatabaseWait.Attempts, Interval: d}, nil
}

// Settings returns the load-generator settings.
func (c *Config) Settings() benchmark.Settings {
	s := benchmark.DefaultSettings()
	s.PrimerDuration = c.BenchmarkSettings.PrimerDuration
	s.PrimerConcurrency = c.BenchmarkSettings.PrimerConcurrency
	s.Duration = c.BenchmarkSettings.Duration
	if c.BenchmarkSettings.Parallelism > 0 {
		s.Parallelism = c.BenchmarkSettings.Parallelism
	}
	return s
}
