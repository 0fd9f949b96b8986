package handler

import (
	"net/http"

	"github.com/capitalize-ai/realtime-relay/internal/analytics"
)

// AnalyticsHandler serves analytics snapshots.
type AnalyticsHandler struct {
	generator *analytics.Generator
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(gen *analytics.Generator) *AnalyticsHandler {
	return &AnalyticsHandler{generator: gen}
}

// Snapshot handles GET /analytics
func (h *AnalyticsHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.generator.Snapshot(analytics.SnapshotPeriods))
}
