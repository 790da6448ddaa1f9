package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/paletsayim/server/internal/models"
	"github.com/paletsayim/server/internal/observability"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.ErrorResponse{Error: message})
}

// respondServiceError maps an error class to its HTTP status. Storage
// failures are logged in full and reported with a generic message.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *models.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		respondJSON(w, http.StatusBadRequest, models.InsufficientStockResponse{
			Error:     "Not enough stock to return",
			Requested: stockErr.Requested,
			Available: stockErr.Available,
		})
	case errors.Is(err, models.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, clientMessage(err))
	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, clientMessage(err))
	default:
		observability.WithContext(r.Context()).WithFields(map[string]interface{}{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
		}).Errorf("Request failed: %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func clientMessage(err error) string {
	var pe models.PalletError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}
