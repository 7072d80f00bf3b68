package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gridpulse/p1-telemetry/internal/http/middleware"
	"github.com/gridpulse/p1-telemetry/internal/services"
)

// SeriesResponse is the body of GET /v1/series.
type SeriesResponse struct {
	DeviceID string            `json:"device_id"`
	Frame    string            `json:"frame"`
	Buckets  []services.Rollup `json:"buckets"`
}

// SeriesHandler serves aggregated history frames.
type SeriesHandler struct {
	Svc *services.SeriesService
}

// NewSeriesHandler wires the handler to its service.
func NewSeriesHandler(svc *services.SeriesService) *SeriesHandler {
	return &SeriesHandler{Svc: svc}
}

// Series handles GET /v1/series?frame=day|month|year|all[&device_id=...].
func (h *SeriesHandler) Series(c *gin.Context) {
	caller := middleware.DeviceID(c)
	device := c.Query("device_id")
	if device == "" {
		device = caller
	}
	if device != caller {
		fail(c, http.StatusForbidden, CodeForbidden, "device_id does not match authenticated device")
		return
	}

	frame := c.DefaultQuery("frame", services.FrameDay)
	buckets, err := h.Svc.Series(c.Request.Context(), device, frame)
	if err != nil {
		if errors.Is(err, services.ErrBadFrame) {
			fail(c, http.StatusBadRequest, CodeBadRequest, "frame must be one of day, month, year, all")
			return
		}
		middleware.LoggerFrom(c).Error().Err(err).Msg("series query failed")
		fail(c, http.StatusInternalServerError, CodeInternalError, "failed to compute series")
		return
	}

	c.JSON(http.StatusOK, SeriesResponse{DeviceID: device, Frame: frame, Buckets: buckets})
}
