package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"benchmark-verifier/internal/verification"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLMarginOfError compensates for identity updates that MySQL discards without
// incrementing Innodb_rows_updated. The statement is still counted by Com_update.
const MySQLMarginOfError = 1.015

const (
	mysqlRowsUpdated = "SELECT variable_name, variable_value FROM PERFORMANCE_SCHEMA.SESSION_STATUS WHERE Variable_name = 'Innodb_rows_updated'"
	mysqlRowsRead    = "SELECT variable_name, variable_value FROM PERFORMANCE_SCHEMA.SESSION_STATUS WHERE Variable_name = 'Innodb_rows_read'"
	mysqlComSelect   = "SHOW GLOBAL STATUS WHERE Variable_name = 'Com_select'"
	mysqlComUpdate   = "SHOW GLOBAL STATUS WHERE Variable_name = 'Com_update'"
)

type MySQLVerifier struct {
	DSN    string
	Wait   WaitPolicy
	Logger *slog.Logger
}

func NewMySQLVerifier(dsn string) *MySQLVerifier {
	return &MySQLVerifier{DSN: dsn, Wait: DefaultWaitPolicy()}
}

func (md *MySQLVerifier) Name() string { return "mysql" }

func (md *MySQLVerifier) MarginOfError() float64 { return MySQLMarginOfError }

func (md *MySQLVerifier) connect(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("mysql", md.DSN)
	if err != nil {
		return nil, fmt.Errorf("sql.Open failed: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", verification.ErrConnectivity, err)
	}
	return db, nil
}

func (md *MySQLVerifier) ping(ctx context.Context) error {
	db, err := md.connect(ctx)
	if err != nil {
		return err
	}
	return db.Close()
}

func (md *MySQLVerifier) WaitForDatabaseToBeAvailable(ctx context.Context, sink verification.Sink) error {
	return waitFor(ctx, md.Wait, loggerOrDefault(md.Logger), md.ping, sink)
}

// runCountingQuery sums the value column of a (name, value) status query.
func (md *MySQLVerifier) runCountingQuery(ctx context.Context, query string) (uint64, error) {
	db, err := md.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("db.Query failed: %w", err)
	}
	defer rows.Close()

	var sum uint64
	for rows.Next() {
		var name string
		var value uint64
		if err := rows.Scan(&name, &value); err != nil {
			return 0, fmt.Errorf("rows.Scan failed: %w", err)
		}
		sum += value
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return sum, nil
}

func (md *MySQLVerifier) GetAllFromWorldTable(ctx context.Context) (map[int32]int32, error) {
	world := map[int32]int32{}

	db, err := md.connect(ctx)
	if err != nil {
		return world, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT id, randomNumber FROM world")
	if err != nil {
		return world, fmt.Errorf("db.Query failed: %w", err)
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

func (md *MySQLVerifier) InsertOneThousandFortunes(ctx context.Context) error {
	db, err := md.connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	ids := seededFortunes()
	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, 2*len(ids))
	for i, id := range ids {
		placeholders[i] = "(?, ?)"
		args = append(args, id, SeededFortuneMessage)
	}

	query := "INSERT INTO fortune (id, message) VALUES " + strings.Join(placeholders, ", ")
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db.Exec failed: %w", err)
	}
	return nil
}

// GetCountOfAllQueriesForTable returns Com_select plus Com_update scaled by the margin of error.
// MySQL does not break these counters down per table.
func (md *MySQLVerifier) GetCountOfAllQueriesForTable(ctx context.Context, table string) (uint64, error) {
	selects, err := md.runCountingQuery(ctx, mysqlComSelect)
	if err != nil {
		return 0, err
	}
	updates, err := md.runCountingQuery(ctx, mysqlComUpdate)
	if err != nil {
		return 0, err
	}
	return withMargin(updates, MySQLMarginOfError) + selects, nil
}

// GetCountOfRowsSelectedForTable returns Innodb_rows_read minus Innodb_rows_updated, since
// rows touched by an update are counted as read too. The unscaled update counter is used:
// it is known to run low, so the difference errs towards enough rows.
func (md *MySQLVerifier) GetCountOfRowsSelectedForTable(ctx context.Context, table string, expectedRowsPerQuery uint64) (uint64, error) {
	read, err := md.runCountingQuery(ctx, mysqlRowsRead)
	if err != nil {
		return 0, err
	}
	updated, err := md.runCountingQuery(ctx, mysqlRowsUpdated)
	if err != nil {
		return 0, err
	}
	return subtractCounters(read, updated)
}

func (md *MySQLVerifier) GetCountOfRowsUpdatedForTable(ctx context.Context, table string, expectedRowsPerQuery uint64) (uint64, error) {
	updated, err := md.runCountingQuery(ctx, mysqlRowsUpdated)
	if err != nil {
		return 0, err
	}
	return withMargin(updated, MySQLMarginOfError), nil
}

func (md *MySQLVerifier) Seed(ctx context.Context) error {
	db, err := md.connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	// DDL commits implicitly in MySQL, so it cannot share the seeding transaction.
	for _, stmt := range mysqlSchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("db.Exec failed: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := mysqlSeedTx(ctx, tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func mysqlSchemaStatements() []string {
	return []string{GetMySQLWorldSchema(), GetMySQLFortuneSchema()}
}

// mysqlResetStatements run inside the seeding transaction and must stay DML.
var mysqlResetStatements = []string{"DELETE FROM world", "DELETE FROM fortune"}

func mysqlSeedTx(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range mysqlResetStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("tx.Exec failed: %w", err)
		}
	}

	rows := worldRows()
	const batch = 1000
	for start := 0; start < len(rows); start += batch {
		end := start + batch
		if end > len(rows) {
			end = len(rows)
		}
		placeholders := make([]string, 0, end-start)
		args := make([]interface{}, 0, 2*(end-start))
		for _, r := range rows[start:end] {
			placeholders = append(placeholders, "(?, ?)")
			args = append(args, r[0], r[1])
		}
		query := "INSERT INTO world (id, randomNumber) VALUES " + strings.Join(placeholders, ", ")
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("tx.Exec failed: %w", err)
		}
	}

	for i, message := range CanonicalFortunes {
		if _, err := tx.ExecContext(ctx, "INSERT INTO fortune (id, message) VALUES (?, ?)", i+1, message); err != nil {
			return fmt.Errorf("tx.Exec failed: %w", err)
		}
	}
	return nil
}
