// Package testutil provides in-memory collaborators for tests.
package testutil

import (
	"context"
	"sync"

	"benchmark-verifier/internal/database"
	"benchmark-verifier/internal/verification"
)

// FakeDatabase is an in-memory DatabaseVerifier. Handlers of test servers call Select and
// Update to emulate the statements an implementation under test would issue.
type FakeDatabase struct {
	mu sync.Mutex

	queries uint64
	rows    uint64
	updated uint64
	world   map[int32]int32

	Fortunes    []string
	Unavailable bool
	InsertErr   error
	Margin      float64
}

func NewFakeDatabase(worldRows int) *FakeDatabase {
	world := make(map[int32]int32, worldRows)
	for i := 1; i <= worldRows; i++ {
		world[int32(i)] = int32(i)
	}
	fortunes := make([]string, len(database.CanonicalFortunes))
	copy(fortunes, database.CanonicalFortunes)
	return &FakeDatabase{world: world, Fortunes: fortunes, Margin: 1}
}

// Select records n single-row select statements.
func (f *FakeDatabase) Select(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries += uint64(n)
	f.rows += uint64(n)
}

// Update records n single-row updates and changes n world rows.
func (f *FakeDatabase) Update(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries += uint64(n)
	f.updated += uint64(n)
	for id := int32(1); id <= int32(n) && int(id) <= len(f.world); id++ {
		f.world[id]++
	}
}

func (f *FakeDatabase) FortuneMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Fortunes))
	copy(out, f.Fortunes)
	return out
}

func (f *FakeDatabase) Name() string { return "fake" }

func (f *FakeDatabase) MarginOfError() float64 { return f.Margin }

func (f *FakeDatabase) WaitForDatabaseToBeAvailable(ctx context.Context, sink verification.Sink) error {
	if f.Unavailable {
		sink.Error("Database unavailable", "fake database is unavailable")
		return database.ErrDatabaseUnavailable
	}
	return nil
}

func (f *FakeDatabase) GetAllFromWorldTable(ctx context.Context) (map[int32]int32, error) {
	if f.Unavailable {
		return map[int32]int32{}, verification.ErrConnectivity
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int32]int32, len(f.world))
	for k, v := range f.world {
		out[k] = v
	}
	return out, nil
}

func (f *FakeDatabase) InsertOneThousandFortunes(ctx context.Context) error {
	if f.Unavailable {
		return verification.ErrConnectivity
	}
	if f.InsertErr != nil {
		return f.InsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < database.SeededFortuneCount; i++ {
		f.Fortunes = append(f.Fortunes, database.SeededFortuneMessage)
	}
	return nil
}

func (f *FakeDatabase) GetCountOfAllQueriesForTable(ctx context.Context, table string) (uint64, error) {
	if f.Unavailable {
		return 0, verification.ErrConnectivity
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries, nil
}

func (f *FakeDatabase) GetCountOfRowsSelectedForTable(ctx context.Context, table string, expectedRowsPerQuery uint64) (uint64, error) {
	if f.Unavailable {
		return 0, verification.ErrConnectivity
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows, nil
}

func (f *FakeDatabase) GetCountOfRowsUpdatedForTable(ctx context.Context, table string, expectedRowsPerQuery uint64) (uint64, error) {
	if f.Unavailable {
		return 0, verification.ErrConnectivity
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(float64(f.updated) * f.Margin), nil
}
