package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/paletsayim/server/internal/models"
	"github.com/paletsayim/server/internal/observability"
)

// Legacy rows may carry NULL in columns that were added later.
const palletColumns = `local_id, firm_name, pallet_type, COALESCE(box_count, 0), COALESCE(vehicle_plate, ''),
	COALESCE(entry_date, ''), COALESCE(entry_time, ''), COALESCE(temperature, ''), COALESCE(note, ''),
	COALESCE(status, 'IN_STOCK'), return_date, COALESCE(is_synced, 1)`

const upsertPalletQuery = `
	INSERT INTO pallets (local_id, firm_name, pallet_type, box_count, vehicle_plate, entry_date, entry_time,
		temperature, note, status, return_date, is_synced)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (local_id) DO UPDATE SET
		firm_name = excluded.firm_name,
		pallet_type = excluded.pallet_type,
		box_count = excluded.box_count,
		vehicle_plate = excluded.vehicle_plate,
		entry_date = excluded.entry_date,
		entry_time = excluded.entry_time,
		temperature = excluded.temperature,
		note = excluded.note,
		status = excluded.status,
		return_date = excluded.return_date,
		is_synced = excluded.is_synced
`

// dialect holds what differs between the SQL backends
type dialect struct {
	name string
	// rebind rewrites ? placeholders into the driver's parameter syntax
	rebind func(query string) string
	// lockCandidates runs first inside a return allocation transaction
	lockCandidates func(ctx context.Context, tx *sql.Tx, firmName, palletType string) error
	// candidateLock is appended to the candidate selection query
	candidateLock string
}

// BEGIN IMMEDIATE already holds the database write lock.
var sqliteDialect = dialect{
	name:   "sqlite",
	rebind: func(query string) string { return query },
	lockCandidates: func(context.Context, *sql.Tx, string, string) error {
		return nil
	},
}

// PalletRepository handles pallet persistence
type PalletRepository struct {
	db      *sql.DB
	dialect dialect
}

// NewPalletRepository creates a PalletRepository backed by SQLite
func NewPalletRepository(db *sql.DB) *PalletRepository {
	return &PalletRepository{db: db, dialect: sqliteDialect}
}

func (r *PalletRepository) q(query string) string {
	return r.dialect.rebind(query)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPallet(s rowScanner) (*models.Pallet, error) {
	var p models.Pallet
	var status string
	var returnDate sql.NullString
	if err := s.Scan(
		&p.LocalID,
		&p.FirmName,
		&p.PalletType,
		&p.BoxCount,
		&p.VehiclePlate,
		&p.EntryDate,
		&p.EntryTime,
		&p.Temperature,
		&p.Note,
		&status,
		&returnDate,
		&p.IsSynced,
	); err != nil {
		return nil, err
	}
	p.Status = models.Status(status)
	if returnDate.Valid {
		v := returnDate.String
		p.ReturnDate = &v
	}
	return &p, nil
}

func upsertArgs(p *models.Pallet) []interface{} {
	var returnDate interface{}
	if p.ReturnDate != nil {
		returnDate = *p.ReturnDate
	}
	return []interface{}{
		p.LocalID,
		p.FirmName,
		p.PalletType,
		p.BoxCount,
		p.VehiclePlate,
		p.EntryDate,
		p.EntryTime,
		p.Temperature,
		p.Note,
		string(p.Status),
		returnDate,
		p.IsSynced,
	}
}

// Upsert inserts a pallet or replaces every field of the existing record with the same local_id
func (r *PalletRepository) Upsert(ctx context.Context, pallet *models.Pallet) error {
	_, err := r.db.ExecContext(ctx, r.q(upsertPalletQuery), upsertArgs(pallet)...)
	return err
}

// BulkUpsert stores a sync batch. A failing record is rolled back to its
// savepoint and does not affect the others.
func (r *PalletRepository) BulkUpsert(ctx context.Context, pallets []*models.Pallet) ([]error, error) {
	ctx, span := observability.StartDBSpan(ctx, r.dialect.name, "UPSERT", "pallets")
	defer span.End()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("begin sync batch: %w", err)
	}
	defer tx.Rollback()

	query := r.q(upsertPalletQuery)
	results := make([]error, len(pallets))
	for i, p := range pallets {
		results[i] = upsertInSavepoint(ctx, tx, query, p)
	}

	if err := tx.Commit(); err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("commit sync batch: %w", err)
	}
	return results, nil
}

func upsertInSavepoint(ctx context.Context, tx *sql.Tx, query string, p *models.Pallet) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT pallet_upsert"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, upsertArgs(p)...); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT pallet_upsert"); rbErr != nil {
			return fmt.Errorf("%v (savepoint rollback: %v)", err, rbErr)
		}
		return err
	}
	_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT pallet_upsert")
	return err
}

// List returns every pallet, newest entry first
func (r *PalletRepository) List(ctx context.Context) ([]*models.Pallet, error) {
	query := `SELECT ` + palletColumns + ` FROM pallets ORDER BY entry_date DESC, entry_time DESC, local_id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pallets := []*models.Pallet{}
	for rows.Next() {
		p, err := scanPallet(rows)
		if err != nil {
			return nil, err
		}
		pallets = append(pallets, p)
	}

	return pallets, rows.Err()
}

// GetByID retrieves a pallet by its local_id
func (r *PalletRepository) GetByID(ctx context.Context, id string) (*models.Pallet, error) {
	query := `SELECT ` + palletColumns + ` FROM pallets WHERE local_id = ?`

	p, err := scanPallet(r.db.QueryRowContext(ctx, r.q(query), id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Update applies the non-nil fields of update to an existing pallet.
// It never creates a record.
func (r *PalletRepository) Update(ctx context.Context, id string, update models.PalletUpdate) error {
	if update.IsEmpty() {
		p, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return models.ErrPalletNotFound
		}
		return nil
	}

	var sets []string
	var args []interface{}
	set := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if update.FirmName != nil {
		set("firm_name", strings.TrimSpace(*update.FirmName))
	}
	if update.PalletType != nil {
		set("pallet_type", strings.TrimSpace(*update.PalletType))
	}
	if update.BoxCount != nil {
		set("box_count", *update.BoxCount)
	}
	if update.VehiclePlate != nil {
		set("vehicle_plate", *update.VehiclePlate)
	}
	if update.Note != nil {
		set("note", *update.Note)
	}
	if update.Temperature != nil {
		set("temperature", *update.Temperature)
	}
	if update.EntryTime != nil {
		set("entry_time", *update.EntryTime)
	}
	args = append(args, id)

	query := `UPDATE pallets SET ` + strings.Join(sets, ", ") + ` WHERE local_id = ?`
	result, err := r.db.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrPalletNotFound
	}
	return nil
}

// Delete removes a pallet by its local_id
func (r *PalletRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.q(`DELETE FROM pallets WHERE local_id = ?`), id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrPalletNotFound
	}
	return nil
}

// AllocateReturn selects the oldest in-stock pallets of a firm and type and
// marks them returned in one transaction. When fewer than req.Count are in
// stock nothing is changed and an *models.InsufficientStockError is returned.
func (r *PalletRepository) AllocateReturn(ctx context.Context, req models.ReturnRequest, returnDate string) (int64, error) {
	ctx, span := observability.StartDBSpan(ctx, r.dialect.name, "ALLOCATE", "pallets")
	defer span.End()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		observability.RecordError(span, err)
		return 0, fmt.Errorf("begin return allocation: %w", err)
	}
	defer tx.Rollback()

	if err := r.dialect.lockCandidates(ctx, tx, req.FirmName, req.PalletType); err != nil {
		observability.RecordError(span, err)
		return 0, fmt.Errorf("lock return candidates: %w", err)
	}

	query := `
		SELECT local_id FROM pallets
		WHERE firm_name = ? AND pallet_type = ? AND status = ?
		ORDER BY entry_date ASC, entry_time ASC, local_id ASC
		LIMIT ?` + r.dialect.candidateLock

	rows, err := tx.QueryContext(ctx, r.q(query), req.FirmName, req.PalletType, string(models.StatusInStock), req.Count)
	if err != nil {
		observability.RecordError(span, err)
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(ids) < req.Count {
		return 0, &models.InsufficientStockError{Requested: req.Count, Available: len(ids)}
	}

	placeholders := make([]string, len(ids))
	args := []interface{}{string(models.StatusReturned), req.Note, returnDate}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	args = append(args, string(models.StatusInStock))

	update := `UPDATE pallets SET status = ?, note = ?, return_date = ?
		WHERE local_id IN (` + strings.Join(placeholders, ",") + `) AND status = ?`
	result, err := tx.ExecContext(ctx, r.q(update), args...)
	if err != nil {
		observability.RecordError(span, err)
		return 0, err
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if changed != int64(len(ids)) {
		err := fmt.Errorf("return allocation changed %d of %d pallets", changed, len(ids))
		observability.RecordError(span, err)
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		observability.RecordError(span, err)
		return 0, fmt.Errorf("commit return allocation: %w", err)
	}

	observability.SetSuccess(span)
	return changed, nil
}

// DeleteByEntryDate removes every pallet that entered on date
func (r *PalletRepository) DeleteByEntryDate(ctx context.Context, date string) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.q(`DELETE FROM pallets WHERE entry_date = ?`), date)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ResetReturnsByDate puts pallets returned on date back in stock and clears their return note
func (r *PalletRepository) ResetReturnsByDate(ctx context.Context, date string) (int64, error) {
	query := `UPDATE pallets SET status = ?, note = '', return_date = NULL WHERE return_date = ?`

	result, err := r.db.ExecContext(ctx, r.q(query), string(models.StatusInStock), date)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountByStatus returns the number of pallets in each lifecycle state
func (r *PalletRepository) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	query := `SELECT COALESCE(status, 'IN_STOCK'), COUNT(*) FROM pallets GROUP BY COALESCE(status, 'IN_STOCK')`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[models.Status]int{
		models.StatusInStock:  0,
		models.StatusReturned: 0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.Status(status)] = n
	}

	return counts, rows.Err()
}
