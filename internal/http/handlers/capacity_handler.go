package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gridpulse/p1-telemetry/internal/http/middleware"
	"github.com/gridpulse/p1-telemetry/internal/services"
)

// CapacityResponse is the body of GET /v1/capacity.
type CapacityResponse struct {
	DeviceID      string            `json:"device_id"`
	Month         string            `json:"month"`
	Peaks         []services.Bucket `json:"peaks"`
	MonthlyPeakW  *int              `json:"monthly_peak_w"`
	MonthlyPeakTS *time.Time        `json:"monthly_peak_ts"`
}

// CapacityHandler serves capacity-tariff peak queries.
type CapacityHandler struct {
	Svc *services.CapacityService
}

// NewCapacityHandler wires the handler to its service.
func NewCapacityHandler(svc *services.CapacityService) *CapacityHandler {
	return &CapacityHandler{Svc: svc}
}

// Capacity handles GET /v1/capacity?month=YYYY-MM[&device_id=...].
//
// device_id defaults to the authenticated device; asking about any other
// device is 403. A month with no samples is a 200 with empty peaks and
// null monthly_peak_w — absence of data is an answer, not an error.
func (h *CapacityHandler) Capacity(c *gin.Context) {
	caller := middleware.DeviceID(c)
	device := c.Query("device_id")
	if device == "" {
		device = caller
	}
	if device != caller {
		fail(c, http.StatusForbidden, CodeForbidden, "device_id does not match authenticated device")
		return
	}

	month := c.Query("month")
	res, err := h.Svc.PeakForMonth(c.Request.Context(), device, month)
	if err != nil {
		if errors.Is(err, services.ErrBadMonth) {
			fail(c, http.StatusBadRequest, CodeBadRequest, "month must be YYYY-MM")
			return
		}
		middleware.LoggerFrom(c).Error().Err(err).Msg("capacity query failed")
		fail(c, http.StatusInternalServerError, CodeInternalError, "failed to compute capacity peaks")
		return
	}

	c.JSON(http.StatusOK, CapacityResponse{
		DeviceID:      device,
		Month:         month,
		Peaks:         res.Buckets,
		MonthlyPeakW:  res.PeakW,
		MonthlyPeakTS: res.PeakBucket,
	})
}
