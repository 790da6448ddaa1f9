package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/paletsayim/server/internal/observability"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// goose keeps its dialect and base filesystem in package state
var migrateMu sync.Mutex

func init() {
	goose.AddNamedMigrationContext("00002_add_lifecycle_columns.go", upLifecycleColumns, downLifecycleColumns)
}

// Migrate brings the pallets schema up to date. dialect is a goose
// dialect name ("sqlite3" or "postgres").
func Migrate(ctx context.Context, db *sql.DB, dialect string) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Columns that older databases were created without
var lifecycleColumns = []struct {
	name       string
	definition string
}{
	{"temperature", "TEXT NOT NULL DEFAULT ''"},
	{"entry_time", "TEXT NOT NULL DEFAULT ''"},
	{"return_date", "TEXT"},
}

func upLifecycleColumns(ctx context.Context, tx *sql.Tx) error {
	existing, err := tableColumns(ctx, tx, "pallets")
	if err != nil {
		return err
	}
	for _, col := range lifecycleColumns {
		if existing[col.name] {
			continue
		}
		if _, err := tx.ExecContext(ctx, "ALTER TABLE pallets ADD COLUMN "+col.name+" "+col.definition); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
	}
	return nil
}

func downLifecycleColumns(ctx context.Context, tx *sql.Tx) error {
	for i := len(lifecycleColumns) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, "ALTER TABLE pallets DROP COLUMN "+lifecycleColumns[i].name); err != nil {
			return fmt.Errorf("drop column %s: %w", lifecycleColumns[i].name, err)
		}
	}
	return nil
}

func tableColumns(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, "SELECT * FROM "+table+" LIMIT 0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c] = true
	}
	return set, nil
}

type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	observability.WithField("component", "migrate").Infof(format, v...)
}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	observability.WithField("component", "migrate").Errorf(format, v...)
}
