package database

import (
	"context"
	"fmt"
	"log/slog"

	"benchmark-verifier/internal/verification"

	"github.com/jackc/pgx/v5"
)

// PostgresMarginOfError is 1: Postgres counts identity updates in pg_stat_statements.
const PostgresMarginOfError = 1.0

const (
	pgCallsForTable = `SELECT COALESCE(SUM(calls), 0)::bigint FROM pg_stat_statements WHERE query ~* $1 AND query ~* $2`
	pgRowsForTable  = `SELECT COALESCE(SUM(rows), 0)::bigint FROM pg_stat_statements WHERE query ~* $1 AND query ~* $2`
)

type PostgresVerifier struct {
	DSN    string
	Wait   WaitPolicy
	Logger *slog.Logger
}

func NewPostgresVerifier(dsn string) *PostgresVerifier {
	return &PostgresVerifier{DSN: dsn, Wait: DefaultWaitPolicy()}
}

func (pd *PostgresVerifier) Name() string { return "postgres" }

func (pd *PostgresVerifier) MarginOfError() float64 { return PostgresMarginOfError }

func (pd *PostgresVerifier) connect(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, pd.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", verification.ErrConnectivity, err)
	}
	return conn, nil
}

func (pd *PostgresVerifier) ping(ctx context.Context) error {
	conn, err := pd.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	return conn.Ping(ctx)
}

func (pd *PostgresVerifier) WaitForDatabaseToBeAvailable(ctx context.Context, sink verification.Sink) error {
	return waitFor(ctx, pd.Wait, loggerOrDefault(pd.Logger), pd.ping, sink)
}

// tableStatement matches statements that mention table as a whole word.
func tableStatement(table string) string {
	return `[[:<:]]` + table + `[[:>:]]`
}

func (pd *PostgresVerifier) runCountingQuery(ctx context.Context, query, table, verb string) (uint64, error) {
	if err := validateTable(table); err != nil {
		return 0, err
	}

	conn, err := pd.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close(ctx)

	var count int64
	if err := conn.QueryRow(ctx, query, tableStatement(table), verb).Scan(&count); err != nil {
		return 0, fmt.Errorf("conn.QueryRow failed: %w", err)
	}
	if count < 0 {
		return 0, fmt.Errorf("%w: negative counter %d", verification.ErrMeasurementAnomaly, count)
	}
	return uint64(count), nil
}

func (pd *PostgresVerifier) GetAllFromWorldTable(ctx context.Context) (map[int32]int32, error) {
	world := map[int32]int32{}

	conn, err := pd.connect(ctx)
	if err != nil {
		return world, err
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, "SELECT id, randomnumber FROM world")
	if err != nil {
		return world, fmt.Errorf("conn.Query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, randomNumber int32
		if err := rows.Scan(&id, &randomNumber); err != nil {
			return map[int32]int32{}, fmt.Errorf("rows.Scan failed: %w", err)
		}
		world[id] = randomNumber
	}
	if err := rows.Err(); err != nil {
		return map[int32]int32{}, err
	}
	return world, nil
}

func (pd *PostgresVerifier) InsertOneThousandFortunes(ctx context.Context) error {
	conn, err := pd.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	ids := seededFortunes()
	rows := make([][]interface{}, len(ids))
	for i, id := range ids {
		rows[i] = []interface{}{id, SeededFortuneMessage}
	}

	if _, err := conn.CopyFrom(ctx, pgx.Identifier{FortuneTable}, []string{"id", "message"}, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("conn.CopyFrom failed: %w", err)
	}
	return nil
}

func (pd *PostgresVerifier) GetCountOfAllQueriesForTable(ctx context.Context, table string) (uint64, error) {
	selects, err := pd.runCountingQuery(ctx, pgCallsForTable, table, "select")
	if err != nil {
		return 0, err
	}
	updates, err := pd.runCountingQuery(ctx, pgCallsForTable, table, "update")
	if err != nil {
		return 0, err
	}
	return withMargin(updates, PostgresMarginOfError) + selects, nil
}

// GetCountOfRowsSelectedForTable reads the rows returned by select statements directly;
// pg_stat_statements does not fold updated rows into them.
func (pd *PostgresVerifier) GetCountOfRowsSelectedForTable(ctx context.Context, table string, expectedRowsPerQuery uint64) (uint64, error) {
	return pd.runCountingQuery(ctx, pgRowsForTable, table, "select")
}

func (pd *PostgresVerifier) GetCountOfRowsUpdatedForTable(ctx context.Context, table string, expectedRowsPerQuery uint64) (uint64, error) {
	updated, err := pd.runCountingQuery(ctx, pgRowsForTable, table, "update")
	if err != nil {
		return 0, err
	}
	return withMargin(updated, PostgresMarginOfError), nil
}

func (pd *PostgresVerifier) Seed(ctx context.Context) (err error) {
	conn, err := pd.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	for _, stmt := range []string{GetPostgresWorldSchema(), GetPostgresFortuneSchema(), "TRUNCATE world", "TRUNCATE fortune"} {
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("tx.Exec failed: %w", err)
		}
	}

	world := worldRows()
	worldCopy := make([][]interface{}, len(world))
	for i, r := range world {
		worldCopy[i] = []interface{}{r[0], r[1]}
	}
	if _, err = tx.CopyFrom(ctx, pgx.Identifier{WorldTable}, []string{"id", "randomnumber"}, pgx.CopyFromRows(worldCopy)); err != nil {
		return fmt.Errorf("tx.CopyFrom failed: %w", err)
	}

	fortunes := make([][]interface{}, len(CanonicalFortunes))
	for i, message := range CanonicalFortunes {
		fortunes[i] = []interface{}{int32(i + 1), message}
	}
	if _, err = tx.CopyFrom(ctx, pgx.Identifier{FortuneTable}, []string{"id", "message"}, pgx.CopyFromRows(fortunes)); err != nil {
		return fmt.Errorf("tx.CopyFrom failed: %w", err)
	}
	return nil
}
