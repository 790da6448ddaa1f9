package repository

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/sethvargo/go-retry"

	"github.com/paletsayim/server/internal/observability"
)

// NewPostgresDB creates and initializes a PostgreSQL database connection.
// The first ping is retried with backoff so the server can start alongside
// its database container.
func NewPostgresDB(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			observability.Warnf("PostgreSQL not reachable yet: %v", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := Migrate(ctx, db, "postgres"); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
