package testtypes

import (
	"context"
	"log/slog"

	"benchmark-verifier/internal/benchmark"
	"benchmark-verifier/internal/database"
	"benchmark-verifier/internal/request"
	"benchmark-verifier/internal/verification"
)

// Executor is the protocol every test type follows.
type Executor interface {
	WaitForDatabaseToBeAvailable(ctx context.Context, sink verification.Sink) error
	RetrieveBenchmarkCommands(url string) (*benchmark.BenchmarkCommands, error)
	// Verify returns an error only for configuration problems; every finding about the
	// implementation under test is recorded in the returned Messages.
	Verify(ctx context.Context, url string) (*verification.Messages, error)
}

// Base carries what every test type needs and implements the parts of Executor they share.
type Base struct {
	ConcurrencyLevels []int
	Database          database.DatabaseVerifier
	Client            *request.Client
	Settings          benchmark.Settings
	Logger            *slog.Logger
}

func NewBase(levels []int, db database.DatabaseVerifier, client *request.Client) Base {
	return Base{
		ConcurrencyLevels: levels,
		Database:          db,
		Client:            client,
		Settings:          benchmark.DefaultSettings(),
		Logger:            slog.Default(),
	}
}

func (b *Base) WaitForDatabaseToBeAvailable(ctx context.Context, sink verification.Sink) error {
	if b.Database == nil {
		return nil
	}
	return b.Database.WaitForDatabaseToBeAvailable(ctx, sink)
}

func (b *Base) RetrieveBenchmarkCommands(url string) (*benchmark.BenchmarkCommands, error) {
	return benchmark.Build(url, b.ConcurrencyLevels, b.Settings)
}

// MaxConcurrency returns the highest configured level.
func (b *Base) MaxConcurrency() (int, error) {
	return benchmark.MaxConcurrency(b.ConcurrencyLevels)
}

func (b *Base) Log() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

// FetchHeaders issues the sentinel header request. When it fails nothing else should be
// requested from url; the failure is already recorded.
func (b *Base) FetchHeaders(ctx context.Context, url string, expected verification.ContentType, messages *verification.Messages) bool {
	headers, err := b.Client.GetResponseHeaders(ctx, url, messages)
	if err != nil {
		return false
	}
	messages.SetHeaders(headers.Header)
	verification.VerifyHeaders(headers, url, expected, messages)
	return true
}
