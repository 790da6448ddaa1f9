package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paletsayim/server/internal/models"
	"github.com/paletsayim/server/internal/observability"
	"github.com/paletsayim/server/internal/repository"
)

// PalletService reconciles client records with the store and serves reads and edits
type PalletService struct {
	repo    repository.PalletRepo
	events  EventPublisher
	metrics *observability.PalletMetrics
}

// NewPalletService creates a new PalletService. events and metrics may be nil.
func NewPalletService(repo repository.PalletRepo, events EventPublisher, metrics *observability.PalletMetrics) *PalletService {
	if events == nil {
		events = noopPublisher{}
	}
	return &PalletService{repo: repo, events: events, metrics: metrics}
}

// SyncedPayload is published after a sync batch stored at least one record
type SyncedPayload struct {
	Received int      `json:"received"`
	Inserted int      `json:"inserted"`
	IDs      []string `json:"ids"`
}

// Sync upserts a batch of client records. Every record is decoded and
// validated on its own; rejected records are reported by local_id and the
// rest are written in one transaction. A resubmitted record replaces the
// stored one, status included.
func (s *PalletService) Sync(ctx context.Context, items []json.RawMessage) (*models.SyncResult, error) {
	ctx, span := observability.StartServiceSpan(ctx, "PalletService", "Sync")
	defer span.End()

	if len(items) == 0 {
		return nil, models.ErrNoData
	}

	itemErrors := make([]*models.SyncItemError, len(items))
	var valid []*models.Pallet
	var validIndex []int

	for i, raw := range items {
		var p models.Pallet
		if err := json.Unmarshal(raw, &p); err != nil {
			itemErrors[i] = &models.SyncItemError{ID: rawLocalID(raw), Error: "malformed record: " + err.Error()}
			continue
		}
		p.Normalize()
		if err := p.Validate(); err != nil {
			itemErrors[i] = &models.SyncItemError{ID: p.LocalID, Error: err.Error()}
			continue
		}
		valid = append(valid, &p)
		validIndex = append(validIndex, i)
	}

	if len(valid) > 0 {
		results, err := s.repo.BulkUpsert(ctx, valid)
		if err != nil {
			observability.RecordError(span, err)
			return nil, fmt.Errorf("sync batch: %w", err)
		}
		for j, err := range results {
			if err != nil {
				observability.WithContext(ctx).WithField("local_id", valid[j].LocalID).Errorf("Failed to store pallet: %v", err)
				itemErrors[validIndex[j]] = &models.SyncItemError{ID: valid[j].LocalID, Error: err.Error()}
			}
		}
	}

	result := &models.SyncResult{
		Message:  "Sync processing complete",
		Received: len(items),
		Errors:   []models.SyncItemError{},
	}
	for _, e := range itemErrors {
		if e != nil {
			result.Errors = append(result.Errors, *e)
		}
	}
	stored := []string{}
	for j, p := range valid {
		if itemErrors[validIndex[j]] == nil {
			stored = append(stored, p.LocalID)
		}
	}
	result.Inserted = len(stored)

	s.metrics.RecordSync(result.Inserted, len(result.Errors))
	observability.WithContext(ctx).WithFields(map[string]interface{}{
		"received": result.Received,
		"inserted": result.Inserted,
		"rejected": len(result.Errors),
	}).Info("Sync batch processed")

	if result.Inserted > 0 {
		s.events.Publish(EventPalletsSynced, SyncedPayload{
			Received: result.Received,
			Inserted: result.Inserted,
			IDs:      stored,
		})
	}

	observability.SetSuccess(span)
	return result, nil
}

// rawLocalID extracts local_id from a record that failed to decode as a whole
func rawLocalID(raw json.RawMessage) string {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	var id string
	if err := json.Unmarshal(probe["local_id"], &id); err != nil {
		return ""
	}
	return id
}

// List returns every pallet, newest entry first
func (s *PalletService) List(ctx context.Context) ([]*models.Pallet, error) {
	pallets, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pallets: %w", err)
	}
	return pallets, nil
}

// Get returns one pallet or models.ErrPalletNotFound
func (s *PalletService) Get(ctx context.Context, id string) (*models.Pallet, error) {
	ctx, span := observability.StartServiceSpan(ctx, "PalletService", "Get")
	defer span.End()
	span.SetAttributes(observability.PalletID(id))

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("get pallet: %w", err)
	}
	if p == nil {
		return nil, models.ErrPalletNotFound
	}
	return p, nil
}

// Update applies a partial edit to an existing pallet
func (s *PalletService) Update(ctx context.Context, id string, update models.PalletUpdate) error {
	ctx, span := observability.StartServiceSpan(ctx, "PalletService", "Update")
	defer span.End()
	span.SetAttributes(observability.PalletID(id))

	if err := update.Validate(); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, update); err != nil {
		if models.IsClientError(err) {
			return err
		}
		observability.RecordError(span, err)
		return fmt.Errorf("update pallet: %w", err)
	}

	s.events.Publish(EventPalletUpdated, map[string]string{"local_id": id})
	return nil
}

// Delete removes a pallet
func (s *PalletService) Delete(ctx context.Context, id string) error {
	ctx, span := observability.StartServiceSpan(ctx, "PalletService", "Delete")
	defer span.End()
	span.SetAttributes(observability.PalletID(id))

	if err := s.repo.Delete(ctx, id); err != nil {
		if models.IsClientError(err) {
			return err
		}
		observability.RecordError(span, err)
		return fmt.Errorf("delete pallet: %w", err)
	}

	s.events.Publish(EventPalletDeleted, map[string]string{"local_id": id})
	return nil
}

// Stats counts pallets per status for the status endpoint and the stats event
func (s *PalletService) Stats(ctx context.Context) (*models.StockStats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count pallets: %w", err)
	}
	return &models.StockStats{
		InStock:   counts[models.StatusInStock],
		Returned:  counts[models.StatusReturned],
		Uptime:    ProcessUptime(),
		Timestamp: time.Now().UTC(),
	}, nil
}
