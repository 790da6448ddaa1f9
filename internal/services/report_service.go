package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/paletsayim/server/internal/models"
	"github.com/paletsayim/server/internal/repository"
)

const (
	palletsSheet = "Pallets"
	summarySheet = "Summary"
)

// ReportService builds stock summaries and spreadsheet exports
type ReportService struct {
	repo repository.PalletRepo
}

// NewReportService creates a new ReportService
func NewReportService(repo repository.PalletRepo) *ReportService {
	return &ReportService{repo: repo}
}

type summaryKey struct {
	firm       string
	palletType string
}

type summaryAcc struct {
	models.StockSummary
	tempSum     decimal.Decimal
	tempSamples int64
}

// Summary aggregates pallets per firm and type, ordered by firm then type
func (s *ReportService) Summary(ctx context.Context) ([]models.StockSummary, error) {
	pallets, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pallets: %w", err)
	}
	return summarize(pallets), nil
}

func summarize(pallets []*models.Pallet) []models.StockSummary {
	groups := make(map[summaryKey]*summaryAcc)
	for _, p := range pallets {
		key := summaryKey{p.FirmName, p.PalletType}
		acc, ok := groups[key]
		if !ok {
			acc = &summaryAcc{StockSummary: models.StockSummary{FirmName: p.FirmName, PalletType: p.PalletType}}
			groups[key] = acc
		}

		if p.Status == models.StatusReturned {
			acc.Returned++
			continue
		}
		acc.InStock++
		acc.InStockBoxes += p.BoxCount
		if t, ok := parseTemperature(p.Temperature); ok {
			acc.tempSum = acc.tempSum.Add(t)
			acc.tempSamples++
		}
	}

	out := make([]models.StockSummary, 0, len(groups))
	for _, acc := range groups {
		if acc.tempSamples > 0 {
			acc.AverageTemperature = acc.tempSum.Div(decimal.NewFromInt(acc.tempSamples)).StringFixed(1)
		}
		out = append(out, acc.StockSummary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirmName != out[j].FirmName {
			return out[i].FirmName < out[j].FirmName
		}
		return out[i].PalletType < out[j].PalletType
	})
	return out
}

// parseTemperature accepts readings such as "4", "-18.5", "3,2" or "4.1°C"
func parseTemperature(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "C")
	s = strings.TrimSuffix(s, "°")
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Export writes an XLSX workbook with every pallet and the stock summary
func (s *ReportService) Export(ctx context.Context, w io.Writer) error {
	pallets, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list pallets: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), palletsSheet); err != nil {
		return err
	}

	header := []interface{}{
		"local_id", "firm_name", "pallet_type", "box_count", "vehicle_plate",
		"entry_date", "entry_time", "temperature", "note", "status", "return_date",
	}
	if err := f.SetSheetRow(palletsSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, p := range pallets {
		returnDate := ""
		if p.ReturnDate != nil {
			returnDate = *p.ReturnDate
		}
		row := []interface{}{
			p.LocalID, p.FirmName, p.PalletType, p.BoxCount, p.VehiclePlate,
			p.EntryDate, p.EntryTime, p.Temperature, p.Note, string(p.Status), returnDate,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(palletsSheet, cell, &row); err != nil {
			return fmt.Errorf("write pallet row: %w", err)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	summaryHeader := []interface{}{"firm_name", "pallet_type", "in_stock", "returned", "in_stock_boxes", "average_temperature"}
	if err := f.SetSheetRow(summarySheet, "A1", &summaryHeader); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}
	for i, sum := range summarize(pallets) {
		row := []interface{}{sum.FirmName, sum.PalletType, sum.InStock, sum.Returned, sum.InStockBoxes, sum.AverageTemperature}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}

	return f.Write(w)
}
