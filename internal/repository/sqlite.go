package repository

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB opens a SQLite database and migrates it.
//
// Transactions start with BEGIN IMMEDIATE so a return allocation holds the
// write lock from its first read. A single connection keeps in-memory
// databases shared and serializes writers inside the process.
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dbPath+sep+"_txlock=immediate&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := Migrate(context.Background(), db, "sqlite3"); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
