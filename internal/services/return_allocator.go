package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paletsayim/server/internal/models"
	"github.com/paletsayim/server/internal/observability"
	"github.com/paletsayim/server/internal/repository"
)

// ReturnAllocator moves the oldest in-stock pallets of a firm and type to RETURNED
type ReturnAllocator struct {
	repo    repository.PalletRepo
	events  EventPublisher
	metrics *observability.PalletMetrics
	now     func() time.Time
}

// NewReturnAllocator creates a new ReturnAllocator. events and metrics may be nil.
func NewReturnAllocator(repo repository.PalletRepo, events EventPublisher, metrics *observability.PalletMetrics) *ReturnAllocator {
	if events == nil {
		events = noopPublisher{}
	}
	return &ReturnAllocator{
		repo:    repo,
		events:  events,
		metrics: metrics,
		now:     time.Now,
	}
}

// WithClock replaces the clock that stamps return_date
func (a *ReturnAllocator) WithClock(now func() time.Time) *ReturnAllocator {
	a.now = now
	return a
}

// ReturnedPayload is published after a successful return
type ReturnedPayload struct {
	FirmName   string `json:"firm_name"`
	PalletType string `json:"pallet_type"`
	Count      int64  `json:"count"`
	ReturnDate string `json:"return_date"`
}

// ReturnPallets returns exactly req.Count pallets or none. Pallets are taken
// in entry order (entry_date, entry_time, local_id).
func (a *ReturnAllocator) ReturnPallets(ctx context.Context, req models.ReturnRequest) (int64, error) {
	ctx, span := observability.StartServiceSpan(ctx, "ReturnAllocator", "ReturnPallets")
	defer span.End()

	if err := req.Validate(); err != nil {
		a.metrics.RecordReturn(observability.ReturnOutcomeInvalid, 0)
		return 0, err
	}
	span.SetAttributes(
		observability.FirmName(req.FirmName),
		observability.PalletType(req.PalletType),
	)

	returnDate := a.now().Format(models.DateLayout)
	returned, err := a.repo.AllocateReturn(ctx, req, returnDate)
	if err != nil {
		var stockErr *models.InsufficientStockError
		if errors.As(err, &stockErr) {
			a.metrics.RecordReturn(observability.ReturnOutcomeInsufficientStock, 0)
			observability.WithContext(ctx).WithFields(map[string]interface{}{
				"firm_name":   req.FirmName,
				"pallet_type": req.PalletType,
				"requested":   stockErr.Requested,
				"available":   stockErr.Available,
			}).Info("Return rejected, not enough stock")
			return 0, err
		}
		a.metrics.RecordReturn(observability.ReturnOutcomeError, 0)
		observability.RecordError(span, err)
		return 0, fmt.Errorf("allocate return: %w", err)
	}

	a.metrics.RecordReturn(observability.ReturnOutcomeOK, returned)
	observability.WithContext(ctx).WithFields(map[string]interface{}{
		"firm_name":   req.FirmName,
		"pallet_type": req.PalletType,
		"returned":    returned,
	}).Info("Pallets returned")

	a.events.Publish(EventPalletsReturned, ReturnedPayload{
		FirmName:   req.FirmName,
		PalletType: req.PalletType,
		Count:      returned,
		ReturnDate: returnDate,
	})

	observability.SetSuccess(span)
	return returned, nil
}
