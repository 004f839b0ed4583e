package query

import (
	"context"
	"errors"
	"fmt"

	"benchmark-verifier/internal/database"
	"benchmark-verifier/internal/testtypes"
	"benchmark-verifier/internal/verification"
)

const (
	// Repetitions is how many rounds of requests the reconciliation phase issues.
	Repetitions = 2
	// QueriesPerRequest is the probe value used while driving load.
	QueriesPerRequest = 20
)

// reading is one counter value, or the error that prevented reading it.
type reading struct {
	value uint64
	err   error
}

type counters struct {
	queries reading
	rows    reading
	updated reading
}

func snapshot(ctx context.Context, db database.DatabaseVerifier, checkUpdates bool) counters {
	var c counters
	c.queries.value, c.queries.err = db.GetCountOfAllQueriesForTable(ctx, database.WorldTable)
	c.rows.value, c.rows.err = db.GetCountOfRowsSelectedForTable(ctx, database.WorldTable, 1)
	if checkUpdates {
		c.updated.value, c.updated.err = db.GetCountOfRowsUpdatedForTable(ctx, database.WorldTable, 1)
	}
	return c
}

func delta(caption string, before, after uint64, messages *verification.Messages) uint64 {
	if after < before {
		messages.Warning("Measurement anomaly",
			fmt.Sprintf("%s counter went backwards from %d to %d", caption, before, after))
		return 0
	}
	return after - before
}

// counterCheck compares counter deltas, recording at most one finding for unreadable counters.
type counterCheck struct {
	messages    *verification.Messages
	unavailable bool
}

func (c *counterCheck) verify(caption string, before, after reading, expected uint64) {
	for _, err := range []error{before.err, after.err} {
		if errors.Is(err, verification.ErrMeasurementAnomaly) {
			c.messages.Warning("Measurement anomaly",
				fmt.Sprintf("The %s counter could not be measured: %v", caption, err))
			return
		}
	}
	for _, err := range []error{before.err, after.err} {
		if err == nil {
			continue
		}
		if !c.unavailable {
			c.unavailable = true
			c.messages.Error("Counters unavailable",
				fmt.Sprintf("Unable to read database counters: %v", err))
		}
		return
	}

	n := delta(caption, before.value, after.value, c.messages)
	verification.VerifyCount(caption, n, expected, c.messages)
}

// reconcile drives repetitions x concurrency requests of QueriesPerRequest queries each and
// compares the database counters against what those requests must have caused.
func reconcile(ctx context.Context, b *testtypes.Base, url string, checkUpdates bool, messages *verification.Messages) {
	if b.Database == nil {
		return
	}
	concurrency, err := b.MaxConcurrency()
	if err != nil {
		return
	}

	requests := Repetitions * concurrency
	expectedRows := uint64(QueriesPerRequest * requests)
	expectedQueries := expectedRows
	if checkUpdates {
		expectedQueries *= 2
	}

	before := snapshot(ctx, b.Database, checkUpdates)
	failed := b.Client.Hammer(ctx, url+fmt.Sprint(QueriesPerRequest), requests, concurrency)
	after := snapshot(ctx, b.Database, checkUpdates)

	if failed > 0 {
		messages.Warning("Failed requests",
			fmt.Sprintf("%d of %d requests failed while driving load for counter reconciliation", failed, requests))
	}

	check := &counterCheck{messages: messages}
	check.verify("executed queries", before.queries, after.queries, expectedQueries)
	check.verify("rows read", before.rows, after.rows, expectedRows)
	if checkUpdates {
		check.verify("rows updated", before.updated, after.updated, expectedRows)
	}

	b.Log().Debug("counter reconciliation finished", "url", url, "requests", requests,
		"queries", after.queries.value, "rows", after.rows.value, "margin", b.Database.MarginOfError())
}
