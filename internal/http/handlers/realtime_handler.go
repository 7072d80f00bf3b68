package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gridpulse/p1-telemetry/internal/http/middleware"
	"github.com/gridpulse/p1-telemetry/internal/services"
)

// RealtimeHandler serves the latest reading of a device.
type RealtimeHandler struct {
	Svc *services.RealtimeService
}

// NewRealtimeHandler wires the handler to its service.
func NewRealtimeHandler(svc *services.RealtimeService) *RealtimeHandler {
	return &RealtimeHandler{Svc: svc}
}

// Realtime handles GET /v1/realtime[?device_id=...].
//
// A device that has never reported yields 404.
func (h *RealtimeHandler) Realtime(c *gin.Context) {
	caller := middleware.DeviceID(c)
	device := c.Query("device_id")
	if device == "" {
		device = caller
	}
	if device != caller {
		fail(c, http.StatusForbidden, CodeForbidden, "device_id does not match authenticated device")
		return
	}

	sm, err := h.Svc.Latest(c.Request.Context(), device)
	if err != nil {
		if errors.Is(err, services.ErrNoData) {
			fail(c, http.StatusNotFound, CodeNotFound, "no samples recorded for device")
			return
		}
		middleware.LoggerFrom(c).Error().Err(err).Msg("realtime lookup failed")
		fail(c, http.StatusInternalServerError, CodeInternalError, "failed to load latest sample")
		return
	}

	c.JSON(http.StatusOK, sm)
}
