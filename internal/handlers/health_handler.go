package handlers

import (
	"net/http"
	"time"

	"github.com/paletsayim/server/internal/models"
	"github.com/paletsayim/server/internal/services"
)

// StatusHandler handles liveness endpoints
type StatusHandler struct {
	ip string
}

// NewStatusHandler creates a new StatusHandler. The host address is resolved once.
func NewStatusHandler() *StatusHandler {
	return &StatusHandler{ip: services.PrimaryIPv4()}
}

// Status returns the server status
// @Summary Server status
// @Description Reports that the server is up, its LAN address and process uptime
// @Tags status
// @Produce json
// @Success 200 {object} models.StatusResponse "Server is up"
// @Router /api/status [get]
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.StatusResponse{
		Status:    "UP",
		Message:   "Pallet server is running",
		IP:        h.ip,
		Uptime:    services.ProcessUptime(),
		Timestamp: time.Now().UTC(),
	})
}
