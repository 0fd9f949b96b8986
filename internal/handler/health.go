package handler

import (
	"net/http"

	"github.com/capitalize-ai/realtime-relay/internal/rooms"
)

// Banner is the plain-text body served at the root path.
const Banner = "Nithin Battery Realtime Server is running"

// Dependency reports whether an optional backing service is reachable.
type Dependency interface {
	IsConnected() bool
}

// Membership lists the local connections of a delivery group.
type Membership interface {
	Members(group string) []string
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	nats  Dependency
	rooms Membership
}

// NewHealthHandler creates a new health handler. nats may be nil when room
// delivery is in-process only.
func NewHealthHandler(nats Dependency, dir Membership) *HealthHandler {
	return &HealthHandler{
		nats:  nats,
		rooms: dir,
	}
}

// Root handles GET /
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(Banner))
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status": "healthy",
	}
	if h.rooms != nil {
		body["admins"] = len(h.rooms.Members(rooms.AdminGroup))
	}
	writeJSON(w, http.StatusOK, body)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.nats != nil && !h.nats.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
