package handlers

import (
	"net/http"
	"runtime"
)

// Build information, set with
// -ldflags "-X github.com/paletsayim/server/internal/handlers.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// BuildInfo returns the version of the running server
// @Summary Server version
// @Tags status
// @Produce json
// @Success 200 {object} VersionResponse
// @Router /api/version [get]
func BuildInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, VersionResponse{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	})
}
