package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paletsayim/server/internal/models"
	"github.com/paletsayim/server/internal/services"
)

// maxSyncBody bounds the size of one sync request
const maxSyncBody = 10 << 20

// PalletHandler handles pallet endpoints
type PalletHandler struct {
	pallets   *services.PalletService
	allocator *services.ReturnAllocator
	reports   *services.ReportService
	labels    *services.LabelService
}

// NewPalletHandler creates a new PalletHandler
func NewPalletHandler(
	pallets *services.PalletService,
	allocator *services.ReturnAllocator,
	reports *services.ReportService,
	labels *services.LabelService,
) *PalletHandler {
	return &PalletHandler{
		pallets:   pallets,
		allocator: allocator,
		reports:   reports,
		labels:    labels,
	}
}

// Sync upserts pallet records sent by a device
// @Summary Sync pallets
// @Description Accepts one pallet record or an array of them. Each record is validated on its own; a resubmitted local_id replaces the stored record.
// @Tags pallets
// @Accept json
// @Produce json
// @Param body body []models.Pallet true "Pallet record or records"
// @Success 200 {object} models.SyncResult "Batch processed"
// @Failure 400 {object} models.ErrorResponse "No data provided"
// @Failure 500 {object} models.ErrorResponse "Server error"
// @Security ApiKeyAuth
// @Router /api/sync [post]
func (h *PalletHandler) Sync(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSyncBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	items, err := decodeSyncBody(body)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	result, err := h.pallets.Sync(r.Context(), items)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// decodeSyncBody splits a sync body into records without decoding them,
// so one malformed record does not reject the batch
func decodeSyncBody(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, models.ErrNoData
	}

	switch body[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, models.PalletError{Kind: models.ErrInvalidRequest, Message: "Request body must be valid JSON"}
		}
		return items, nil
	case '{':
		if !json.Valid(body) {
			return nil, models.PalletError{Kind: models.ErrInvalidRequest, Message: "Request body must be valid JSON"}
		}
		return []json.RawMessage{body}, nil
	default:
		return nil, models.PalletError{Kind: models.ErrInvalidRequest, Message: "Request body must be a JSON object or array"}
	}
}

// List returns every pallet
// @Summary List pallets
// @Description Returns all pallets, newest entry first
// @Tags pallets
// @Produce json
// @Success 200 {object} models.PalletListResponse "Pallets"
// @Failure 500 {object} models.ErrorResponse "Server error"
// @Security ApiKeyAuth
// @Router /api/pallets [get]
func (h *PalletHandler) List(w http.ResponseWriter, r *http.Request) {
	pallets, err := h.pallets.List(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, models.PalletListResponse{
		Count: len(pallets),
		Data:  pallets,
	})
}

// Return moves the oldest in-stock pallets of a firm and type to RETURNED
// @Summary Return pallets
// @Description Returns exactly count pallets in entry order, or none when fewer are in stock
// @Tags pallets
// @Accept json
// @Produce json
// @Param body body models.ReturnRequest true "Return request"
// @Success 200 {object} models.ReturnResult "Pallets returned"
// @Failure 400 {object} models.InsufficientStockResponse "Not enough stock or missing parameters"
// @Failure 500 {object} models.ErrorResponse "Server error"
// @Security ApiKeyAuth
// @Router /api/return [post]
func (h *PalletHandler) Return(w http.ResponseWriter, r *http.Request) {
	var body returnBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, models.ErrMissingReturnParams.Message)
		return
	}
	req, err := body.request()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	returned, err := h.allocator.ReturnPallets(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, models.ReturnResult{
		Message:       "Pallets returned successfully",
		ReturnedCount: returned,
	})
}

// returnBody is the wire form of a return request. Devices send count as a
// number or as a numeric string.
type returnBody struct {
	FirmName   string          `json:"firm_name"`
	PalletType string          `json:"pallet_type"`
	Count      json.RawMessage `json:"count"`
	Note       string          `json:"note"`
}

func (b returnBody) request() (models.ReturnRequest, error) {
	req := models.ReturnRequest{FirmName: b.FirmName, PalletType: b.PalletType, Note: b.Note}
	count, err := parseCount(b.Count)
	if err != nil {
		return req, err
	}
	req.Count = count
	return req, nil
}

// parseCount leaves an absent count at zero so validation reports it
func parseCount(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, nil
		}
	}
	return 0, models.ErrInvalidReturnCount
}

// Update edits the mutable fields of a pallet
// @Summary Update pallet
// @Description Partially updates firm, type, box count, plate, note, temperature or entry time
// @Tags pallets
// @Accept json
// @Produce json
// @Param id path string true "Pallet local_id"
// @Param body body models.PalletUpdate true "Fields to change"
// @Success 200 {object} models.MessageResponse "Updated"
// @Failure 400 {object} models.ErrorResponse "Invalid request"
// @Failure 404 {object} models.ErrorResponse "Pallet not found"
// @Security ApiKeyAuth
// @Router /api/pallets/{id} [put]
func (h *PalletHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var update models.PalletUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "Request body must be valid JSON")
		return
	}

	if err := h.pallets.Update(r.Context(), id, update); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, models.MessageResponse{Message: "Updated successfully", ID: id})
}

// Delete removes a pallet
// @Summary Delete pallet
// @Tags pallets
// @Produce json
// @Param id path string true "Pallet local_id"
// @Success 200 {object} models.MessageResponse "Deleted"
// @Failure 404 {object} models.ErrorResponse "Pallet not found"
// @Security ApiKeyAuth
// @Router /api/pallets/{id} [delete]
func (h *PalletHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.pallets.Delete(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, models.MessageResponse{Message: "Deleted successfully", ID: id})
}

// Summary returns stock counts per firm and type
// @Summary Stock summary
// @Tags reports
// @Produce json
// @Success 200 {object} models.StockSummaryResponse "Summary"
// @Security ApiKeyAuth
// @Router /api/pallets/summary [get]
func (h *PalletHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reports.Summary(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, models.StockSummaryResponse{Count: len(summary), Data: summary})
}

// Export downloads every pallet as an XLSX workbook
// @Summary Export pallets
// @Tags reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success 200 {file} file "Workbook"
// @Security ApiKeyAuth
// @Router /api/pallets/export [get]
func (h *PalletHandler) Export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.reports.Export(r.Context(), &buf); err != nil {
		respondServiceError(w, r, err)
		return
	}

	filename := fmt.Sprintf("pallets_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Label renders a printable label for one pallet
// @Summary Pallet label
// @Tags reports
// @Produce application/pdf
// @Param id path string true "Pallet local_id"
// @Success 200 {file} file "PDF label"
// @Failure 404 {object} models.ErrorResponse "Pallet not found"
// @Security ApiKeyAuth
// @Router /api/pallets/{id}/label [get]
func (h *PalletHandler) Label(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	pdf, err := h.labels.Label(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="pallet_%s.pdf"`, id))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}
