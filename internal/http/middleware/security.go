package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures the hardening headers applied to every
// response.
type SecurityOptions struct {
	// FrameOptions is the X-Frame-Options value, e.g. "DENY".
	FrameOptions string
	// ReferrerPolicy is the Referrer-Policy value.
	ReferrerPolicy string
	// PermissionsPolicy is emitted verbatim when non-empty.
	PermissionsPolicy string
	// NoStore adds Cache-Control: no-store to keep meter data out of
	// shared caches.
	NoStore bool
	// HSTSSeconds enables Strict-Transport-Security when > 0 and the
	// request arrived over TLS.
	HSTSSeconds int
	// HSTSIncludeSubdomains appends includeSubDomains to the HSTS value.
	HSTSIncludeSubdomains bool
}

// SecurityHeaders sets conservative response headers suitable for a
// JSON-only API. HSTS is emitted only on requests that actually arrived
// over TLS (directly or via a trusted proxy), so plain-HTTP health probes
// on an internal network are unaffected.
func SecurityHeaders(opts SecurityOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		if opts.FrameOptions != "" {
			h.Set("X-Frame-Options", opts.FrameOptions)
		}
		if opts.ReferrerPolicy != "" {
			h.Set("Referrer-Policy", opts.ReferrerPolicy)
		}
		if opts.PermissionsPolicy != "" {
			h.Set("Permissions-Policy", opts.PermissionsPolicy)
		}
		if opts.NoStore {
			h.Set("Cache-Control", "no-store")
		}
		if opts.HSTSSeconds > 0 && isHTTPS(c) {
			v := "max-age=" + strconv.Itoa(opts.HSTSSeconds)
			if opts.HSTSIncludeSubdomains {
				v += "; includeSubDomains"
			}
			h.Set("Strict-Transport-Security", v)
		}
		c.Next()
	}
}

// isHTTPS reports whether the request arrived over TLS, either directly
// or as declared by a forwarding proxy.
func isHTTPS(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	return strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
}
