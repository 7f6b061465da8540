// Package presence exposes a read-only HTTP view of doctor availability for
// clients that want the directory without holding a WebSocket open.
package presence

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"telecare-signaling/internal/coordinator"
	"telecare-signaling/pkg/response"
)

// Handler serves presence snapshots
type Handler struct {
	presence *coordinator.PresenceTracker
}

// NewHandler creates a presence HTTP handler
func NewHandler(presence *coordinator.PresenceTracker) *Handler {
	return &Handler{presence: presence}
}

// ListDoctors handles GET /v1/presence/doctors
func (h *Handler) ListDoctors(c *gin.Context) {
	doctors := h.presence.Snapshot()
	response.Success(c, http.StatusOK, gin.H{
		"doctors": doctors,
		"count":   len(doctors),
	})
}
