package services

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/paletsayim/server/internal/models"
)

// LabelService renders printable pallet labels
type LabelService struct {
	pallets *PalletService
}

// NewLabelService creates a new LabelService
func NewLabelService(pallets *PalletService) *LabelService {
	return &LabelService{pallets: pallets}
}

// Label renders the label of one pallet as a single A6 PDF page
func (s *LabelService) Label(ctx context.Context, id string) ([]byte, error) {
	p, err := s.pallets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return RenderLabel(p)
}

// RenderLabel draws a QR code of the local_id above the pallet details
func RenderLabel(p *models.Pallet) ([]byte, error) {
	qrPng, err := qrcode.Encode(p.LocalID, qrcode.Medium, 512)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A6", "")
	pdf.SetMargins(8, 8, 8)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageWidth, _ := pdf.GetPageSize()
	qrSize := 60.0
	imgOptions := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	pdf.RegisterImageOptionsReader("qr", imgOptions, bytes.NewReader(qrPng))
	pdf.ImageOptions("qr", (pageWidth-qrSize)/2, 8, qrSize, qrSize, false, imgOptions, 0, "")

	pdf.SetXY(8, 72)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(pageWidth-16, 8, tr(p.FirmName), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	lines := [][2]string{
		{"Type", p.PalletType},
		{"Boxes", strconv.Itoa(p.BoxCount)},
		{"Entry", strings.TrimSpace(p.EntryDate + " " + p.EntryTime)},
		{"Plate", p.VehiclePlate},
		{"Temp", p.Temperature},
	}
	for _, line := range lines {
		if line[1] == "" {
			continue
		}
		pdf.SetX(8)
		pdf.CellFormat(24, 7, line[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(pageWidth-40, 7, tr(line[1]), "", 1, "L", false, 0, "")
	}

	pdf.SetXY(8, 136)
	pdf.SetFont("Courier", "", 7)
	pdf.CellFormat(pageWidth-16, 4, p.LocalID, "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render label: %w", err)
	}
	return buf.Bytes(), nil
}
