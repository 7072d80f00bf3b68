// Package handlers implements the HTTP endpoints of the telemetry API.
//
// Handlers are thin: they bind and sanity-check the request, call the
// owning service, translate service errors to HTTP status codes, and
// shape the JSON response. All business rules live in internal/services.
package handlers

import (
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the uniform error envelope returned by every endpoint.
type ErrorResponse struct {
	// RequestID echoes the correlation ID of the failed request.
	RequestID string `json:"request_id,omitempty"`
	// Code is a stable machine-readable error code.
	Code string `json:"code"`
	// Message is a human-readable description safe to show to callers.
	Message string `json:"message"`
}

// fail aborts the request with the uniform error envelope.
func fail(c *gin.Context, status int, code, message string) {
	rid := ""
	if v, ok := c.Get("requestID"); ok {
		if s, ok := v.(string); ok {
			rid = s
		}
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: rid,
		Code:      code,
		Message:   message,
	})
}

// Fail is the exported variant of fail for use outside this package
// (router-level 404/405 handlers).
func Fail(c *gin.Context, status int, code, message string) {
	fail(c, status, code, message)
}
