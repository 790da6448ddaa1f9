package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/paletsayim/server/internal/models"
	"github.com/paletsayim/server/internal/observability"
	"github.com/paletsayim/server/internal/repository"
)

// CleanupMode selects which date-scoped corrections a cleanup run applies
type CleanupMode string

const (
	CleanupAll     CleanupMode = "all"
	CleanupEntries CleanupMode = "entries"
	CleanupReturns CleanupMode = "returns"
)

// ParseCleanupMode validates a mode name
func ParseCleanupMode(s string) (CleanupMode, error) {
	switch m := CleanupMode(strings.ToLower(strings.TrimSpace(s))); m {
	case CleanupAll, CleanupEntries, CleanupReturns:
		return m, nil
	default:
		return "", fmt.Errorf("unknown cleanup mode %q (want all, entries or returns)", s)
	}
}

// CleanupService undoes the entries and returns recorded on one day
type CleanupService struct {
	repo repository.PalletRepo
}

// NewCleanupService creates a new CleanupService
func NewCleanupService(repo repository.PalletRepo) *CleanupService {
	return &CleanupService{repo: repo}
}

// DeleteEntriesOn deletes every pallet whose entry_date is date
func (s *CleanupService) DeleteEntriesOn(ctx context.Context, date string) (int64, error) {
	if !models.IsValidDate(date) {
		return 0, models.ErrInvalidDate
	}
	n, err := s.repo.DeleteByEntryDate(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("delete entries of %s: %w", date, err)
	}
	observability.WithField("date", date).Infof("Deleted %d pallets entered on %s", n, date)
	return n, nil
}

// ResetReturnsOn puts every pallet returned on date back in stock
func (s *CleanupService) ResetReturnsOn(ctx context.Context, date string) (int64, error) {
	if !models.IsValidDate(date) {
		return 0, models.ErrInvalidDate
	}
	n, err := s.repo.ResetReturnsByDate(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("reset returns of %s: %w", date, err)
	}
	observability.WithField("date", date).Infof("Reset %d pallets returned on %s back to IN_STOCK", n, date)
	return n, nil
}

// Run applies the corrections selected by mode, deleting entries before
// resetting returns. Pallets entered on date are already gone when the
// reset runs, so only older stock is put back.
func (s *CleanupService) Run(ctx context.Context, date string, mode CleanupMode) (*models.CleanupResult, error) {
	if !models.IsValidDate(date) {
		return nil, models.ErrInvalidDate
	}
	mode, err := ParseCleanupMode(string(mode))
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartServiceSpan(ctx, "CleanupService", "Run")
	defer span.End()
	started := time.Now()

	result := &models.CleanupResult{Date: date}
	if mode == CleanupAll || mode == CleanupEntries {
		n, err := s.DeleteEntriesOn(ctx, date)
		if err != nil {
			return result, err
		}
		result.DeletedCount = n
	}
	if mode == CleanupAll || mode == CleanupReturns {
		n, err := s.ResetReturnsOn(ctx, date)
		if err != nil {
			return result, err
		}
		result.ResetCount = n
	}

	observability.AddEvent(span, "cleanup.completed", observability.Duration(time.Since(started)))
	observability.SetSuccess(span)
	return result, nil
}
