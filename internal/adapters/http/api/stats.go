package api

import (
	"context"
	"net/http"

	service "github.com/okian/cltv/internal/app"
)

// StatsProvider exposes the results of the last pipeline run.
type StatsProvider interface {
	Stats(ctx context.Context) (*service.Run, error)
	Params(ctx context.Context) (service.Params, error)
	Segments(ctx context.Context) ([]service.SegmentCount, error)
}

// StatsHandler handles run level requests.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	run, err := h.statsProvider.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HandleParams handles GET /params requests.
func (h *StatsHandler) HandleParams(w http.ResponseWriter, r *http.Request) {
	params, err := h.statsProvider.Params(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, params)
}

// HandleSegments handles GET /segments requests.
func (h *StatsHandler) HandleSegments(w http.ResponseWriter, r *http.Request) {
	segments, err := h.statsProvider.Segments(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, segments)
}
