package repository

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// Return allocations for the same firm and type queue on one advisory lock;
// FOR UPDATE pins the selected rows against concurrent edits.
var postgresDialect = dialect{
	name:   "postgresql",
	rebind: rebindDollar,
	lockCandidates: func(ctx context.Context, tx *sql.Tx, firmName, palletType string) error {
		_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, firmName+"/"+palletType)
		return err
	},
	candidateLock: " FOR UPDATE",
}

// NewPalletRepositoryPostgres creates a PalletRepository backed by PostgreSQL
func NewPalletRepositoryPostgres(db *sql.DB) *PalletRepository {
	return &PalletRepository{db: db, dialect: postgresDialect}
}

// rebindDollar numbers ? placeholders as $1, $2, ...
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
