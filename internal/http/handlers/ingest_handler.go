package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gridpulse/p1-telemetry/internal/domain"
	"github.com/gridpulse/p1-telemetry/internal/http/middleware"
	"github.com/gridpulse/p1-telemetry/internal/services"
)

// IngestRequest is the body of POST /v1/ingest.
type IngestRequest struct {
	Samples []domain.Sample `json:"samples"`
}

// IngestResponse reports how many rows were genuinely new. A retried
// batch that was already fully persisted yields inserted=0 with 200.
type IngestResponse struct {
	Inserted int64 `json:"inserted"`
}

// IngestHandler accepts telemetry batches from edge devices.
type IngestHandler struct {
	Svc *services.IngestService
}

// NewIngestHandler wires the handler to its service.
func NewIngestHandler(svc *services.IngestService) *IngestHandler {
	return &IngestHandler{Svc: svc}
}

// Ingest handles POST /v1/ingest.
//
// The caller's identity comes from the bearer token, never from the
// body; a batch naming any other device is refused with 403. Validation
// failures and malformed batches are 400. Accepted batches return the
// count of newly inserted rows.
func (h *IngestHandler) Ingest(c *gin.Context) {
	device := middleware.DeviceID(c)
	if device == "" {
		fail(c, http.StatusUnauthorized, CodeUnauthorized, "missing device identity")
		return
	}

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}

	inserted, err := h.Svc.Ingest(c.Request.Context(), device, req.Samples)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDeviceMismatch):
			fail(c, http.StatusForbidden, CodeForbidden, "device_id does not match authenticated device")
		case services.IsContractViolation(err):
			fail(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		default:
			middleware.LoggerFrom(c).Error().Err(err).Msg("ingest failed")
			fail(c, http.StatusInternalServerError, CodeInternalError, "failed to persist samples")
		}
		return
	}

	c.JSON(http.StatusOK, IngestResponse{Inserted: inserted})
}
