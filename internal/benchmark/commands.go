package benchmark

import (
	"runtime"
	"strconv"

	"benchmark-verifier/internal/verification"
)

const (
	ServerHost = "bw-server"

	Accept = "application/json,text/html;q=0.9,application/xhtml+xml;q=0.9,application/xml;q=0.8,*/*;q=0.7"

	// RequestTimeoutSeconds is the per-request timeout handed to wrk.
	RequestTimeoutSeconds = 8

	PrimerDuration    = 5
	PrimerConcurrency = 8
	BenchmarkDuration = 15
)

// BenchmarkCommands is the set of load-generator invocations for one endpoint.
type BenchmarkCommands struct {
	PrimerCommand     []string
	WarmupCommand     []string
	BenchmarkCommands [][]string
}

// Settings controls durations and thread capping for the generated commands.
type Settings struct {
	PrimerDuration    int
	PrimerConcurrency int
	Duration          int
	Parallelism       int
}

func DefaultSettings() Settings {
	return Settings{
		PrimerDuration:    PrimerDuration,
		PrimerConcurrency: PrimerConcurrency,
		Duration:          BenchmarkDuration,
		Parallelism:       Parallelism(),
	}
}

// Parallelism returns the number of threads the host can run in parallel.
func Parallelism() int {
	return runtime.NumCPU()
}

// WrkCommand builds the wrk argument list. The thread count never exceeds parallelism.
func WrkCommand(url string, duration, concurrency, parallelism int) []string {
	threads := concurrency
	if parallelism < threads {
		threads = parallelism
	}

	return []string{
		"wrk",
		"-H", "Host: " + ServerHost,
		"-H", "Accept: " + Accept,
		"-H", "Connection: keep-alive",
		"--latency",
		"-d", strconv.Itoa(duration),
		"-c", strconv.Itoa(concurrency),
		"--timeout", strconv.Itoa(RequestTimeoutSeconds),
		"-t", strconv.Itoa(threads),
		url,
	}
}

// MaxConcurrency returns the highest level, or a ConfigurationError when levels is empty.
func MaxConcurrency(levels []int) (int, error) {
	if len(levels) == 0 {
		return 0, &verification.ConfigurationError{Field: "concurrency_levels", Reason: "must not be empty"}
	}
	max := levels[0]
	for _, c := range levels[1:] {
		if c > max {
			max = c
		}
	}
	return max, nil
}

// Build creates the primer, warmup and per-level commands for url.
func Build(url string, levels []int, s Settings) (*BenchmarkCommands, error) {
	max, err := MaxConcurrency(levels)
	if err != nil {
		return nil, err
	}

	cmds := &BenchmarkCommands{
		PrimerCommand: WrkCommand(url, s.PrimerDuration, s.PrimerConcurrency, s.Parallelism),
		WarmupCommand: WrkCommand(url, s.Duration, max, s.Parallelism),
	}
	for _, c := range levels {
		cmds.BenchmarkCommands = append(cmds.BenchmarkCommands, WrkCommand(url, s.Duration, c, s.Parallelism))
	}

	return cmds, nil
}

// All returns every command in execution order.
func (c *BenchmarkCommands) All() [][]string {
	all := [][]string{c.PrimerCommand, c.WarmupCommand}
	return append(all, c.BenchmarkCommands...)
}
