package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"benchmark-verifier/internal/verification"
)

const (
	WorldTable   = "world"
	FortuneTable = "fortune"

	// SeededFortuneMessage is the payload of every row written by InsertOneThousandFortunes.
	SeededFortuneMessage = "フレームワークのベンチマーク"
	SeededFortuneCount   = 1000
	// SeededFortuneFirstID follows the canonical fortunes already present in the table.
	SeededFortuneFirstID = 13
)

// ErrDatabaseUnavailable is returned once the wait policy is exhausted.
var ErrDatabaseUnavailable = fmt.Errorf("database unavailable: %w", verification.ErrConnectivity)

// DatabaseVerifier reads the reference tables and status counters of one database engine.
// Every method opens and closes its own connection. Failures yield the documented empty
// or zero value together with the error, so callers may ignore the error and still verify.
type DatabaseVerifier interface {
	Name() string
	MarginOfError() float64
	WaitForDatabaseToBeAvailable(ctx context.Context, sink verification.Sink) error
	// GetAllFromWorldTable never returns a nil map.
	GetAllFromWorldTable(ctx context.Context) (map[int32]int32, error)
	InsertOneThousandFortunes(ctx context.Context) error
	GetCountOfAllQueriesForTable(ctx context.Context, table string) (uint64, error)
	GetCountOfRowsSelectedForTable(ctx context.Context, table string, expectedRowsPerQuery uint64) (uint64, error)
	GetCountOfRowsUpdatedForTable(ctx context.Context, table string, expectedRowsPerQuery uint64) (uint64, error)
}

// Seeder creates and fills the reference tables.
type Seeder interface {
	Seed(ctx context.Context) error
}

// WaitPolicy bounds WaitForDatabaseToBeAvailable.
type WaitPolicy struct {
	Attempts int
	Interval time.Duration
}

func DefaultWaitPolicy() WaitPolicy {
	return WaitPolicy{Attempts: 60, Interval: time.Second}
}

func waitFor(ctx context.Context, policy WaitPolicy, logger *slog.Logger, ping func(context.Context) error, sink verification.Sink) error {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if lastErr = ping(ctx); lastErr == nil {
			return nil
		}
		logger.Debug("database not reachable yet", "attempt", attempt, "error", lastErr)

		if attempt >= policy.Attempts {
			break
		}
		if err := sleep(ctx, policy.Interval); err != nil {
			lastErr = err
			break
		}
	}

	sink.Error("Database unavailable",
		fmt.Sprintf("Database connection could not be established after %d attempts (%v apart): %v",
			policy.Attempts, policy.Interval, lastErr))
	return ErrDatabaseUnavailable
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withMargin scales a raw counter by an engine's margin of error, truncating.
func withMargin(count uint64, margin float64) uint64 {
	return uint64(float64(count) * margin)
}

// subtractCounters returns a-b, or 0 and ErrMeasurementAnomaly when b exceeds a.
func subtractCounters(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("%w: subtracting %d from %d", verification.ErrMeasurementAnomaly, b, a)
	}
	return a - b, nil
}

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func validateTable(table string) error {
	if !identifier.MatchString(table) {
		return errors.New("invalid table name: " + table)
	}
	return nil
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
