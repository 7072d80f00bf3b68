// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns
// such as tracing, correlation IDs, logging, panic recovery, metrics,
// CORS, security headers, device authentication, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/gridpulse/p1-telemetry/internal/auth"
	"github.com/gridpulse/p1-telemetry/internal/cache"
	"github.com/gridpulse/p1-telemetry/internal/config"
	"github.com/gridpulse/p1-telemetry/internal/http/handlers"
	"github.com/gridpulse/p1-telemetry/internal/http/middleware"
	"github.com/gridpulse/p1-telemetry/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given
// Gin engine: observability (tracing, metrics), CORS and security
// headers, health and metrics endpoints, then the versioned telemetry API
// behind device authentication and rate limiting.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured request logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and security headers
//  8. (API group only) device auth, then per-device rate limiting
func RegisterRoutes(r *gin.Engine, db *gorm.DB, tokens auth.DeviceTokens, kv cache.Cache, cfg config.ServerConfig) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB; a full batch is well under this)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (safe defaults: allow all if none configured)
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	// Security headers (HSTS only when enabled and request is HTTPS)
	hsts := 0
	if cfg.Security.EnableHSTS {
		hsts = int(cfg.Security.HSTSMaxAge / time.Second)
	}
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		FrameOptions:   "DENY",
		ReferrerPolicy: "no-referrer",
		NoStore:        true,
		HSTSSeconds:    hsts,
	}))

	// Compress the read-path responses; series frames can be sizeable.
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.CodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.CodeBadRequest, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← db/cache/config
	ingestSvc := &services.IngestService{
		DB:        db,
		Cache:     kv,
		MaxBatch:  cfg.MaxBatch,
		ClockSkew: cfg.ClockSkew,
	}
	capacitySvc := &services.CapacityService{DB: db}
	realtimeSvc := &services.RealtimeService{DB: db, Cache: kv, TTL: cfg.CacheTTL}
	seriesSvc := &services.SeriesService{DB: db}

	ingestH := handlers.NewIngestHandler(ingestSvc)
	capacityH := handlers.NewCapacityHandler(capacitySvc)
	realtimeH := handlers.NewRealtimeHandler(realtimeSvc)
	seriesH := handlers.NewSeriesHandler(seriesSvc)

	// Versioned API: authenticated, rate limited per device
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.DeviceAuth(tokens))
	api.Use(middleware.RateLimit(middleware.RateLimitOptions{
		RPS:   cfg.RateRPS,
		Burst: cfg.RateBurst,
	}))
	{
		api.POST("/ingest", ingestH.Ingest)
		api.GET("/realtime", realtimeH.Realtime)
		api.GET("/capacity", capacityH.Capacity)
		api.GET("/series", seriesH.Series)
	}
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader. Requests exceeding the cap cause downstream body
// reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
