package repository

import (
	"context"

	"github.com/paletsayim/server/internal/models"
)

// PalletRepo defines the interface for pallet persistence operations
type PalletRepo interface {
	Upsert(ctx context.Context, pallet *models.Pallet) error
	// BulkUpsert writes every record in one transaction. The returned slice
	// holds one entry per input record, nil when that record was stored.
	BulkUpsert(ctx context.Context, pallets []*models.Pallet) ([]error, error)
	List(ctx context.Context) ([]*models.Pallet, error)
	GetByID(ctx context.Context, id string) (*models.Pallet, error)
	Update(ctx context.Context, id string, update models.PalletUpdate) error
	Delete(ctx context.Context, id string) error
	// AllocateReturn marks the oldest req.Count in-stock pallets of the firm
	// and type as returned, or none of them.
	AllocateReturn(ctx context.Context, req models.ReturnRequest, returnDate string) (int64, error)
	DeleteByEntryDate(ctx context.Context, date string) (int64, error)
	ResetReturnsByDate(ctx context.Context, date string) (int64, error)
	CountByStatus(ctx context.Context) (map[models.Status]int, error)
}
