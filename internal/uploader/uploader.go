// Package uploader implements the delivery agent: it drains the spool in
// batches, POSTs them to the ingest API, and acknowledges exactly what the
// server confirmed. The retry loop is unbounded by design; backoff shapes
// the retry cadence, never data lifetime.
//
// Failure handling is deliberately uniform. Connection errors, timeouts,
// and non-2xx responses all mean "not acknowledged, retry later" — the
// agent never drops or ages out entries, and it does not special-case
// contract violations (a stuck queue is an operator signal, surfaced via
// the exported metrics and the health file).
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/gridpulse/p1-telemetry/internal/config"
	"github.com/gridpulse/p1-telemetry/internal/domain"
	"github.com/gridpulse/p1-telemetry/internal/spool"
)

var (
	// uploadsTotal counts upload cycles by result (ok, failed, empty).
	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_uploads_total",
			Help: "Total upload cycles by result.",
		},
		[]string{"result"},
	)

	// samplesUploaded counts samples acknowledged by the server.
	samplesUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_samples_uploaded_total",
			Help: "Total samples acknowledged by the ingest API.",
		},
	)

	// spoolDepth gauges the pending spool entries after each cycle.
	spoolDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "edge_spool_pending",
			Help: "Samples waiting in the spool for delivery.",
		},
	)
)

func init() {
	prometheus.MustRegister(uploadsTotal, samplesUploaded, spoolDepth)
}

// ingestRequest is the wire envelope: a wrapped array, never a bare one.
type ingestRequest struct {
	Samples []domain.Sample `json:"samples"`
}

// ingestResponse is the server's success body.
type ingestResponse struct {
	Inserted int `json:"inserted"`
}

// Options configures an Uploader.
type Options struct {
	// IngestURL is the API base URL; must use https.
	IngestURL string
	// DeviceToken authenticates this device against the ingest API.
	DeviceToken string
	// BatchSize caps samples per request. Values < 1 default to 30.
	BatchSize int
	// MaxBackoff caps the retry delay. Values <= 0 default to 5 minutes.
	MaxBackoff time.Duration
	// RequestTimeout bounds a single POST. Values <= 0 default to 30s.
	RequestTimeout time.Duration
}

// Uploader owns the Sending/Backoff state machine. Upload cycles are
// driven by a single Run loop; Backoff may be read concurrently from
// other goroutines (the health tracker snapshots it), which is why the
// attempt counter is atomic.
type Uploader struct {
	spool          *spool.Spool
	ingestURL      string
	deviceToken    string
	batchSize      int
	maxBackoff     time.Duration
	requestTimeout time.Duration

	client  *http.Client
	attempt atomic.Uint32
}

// New validates the options and returns an Uploader. A non-https ingest
// URL is rejected here, at construction: encrypted transport is a hard
// precondition, not a runtime failure. Certificate validation stays at
// the http.Transport default (full verification).
func New(sp *spool.Spool, opts Options) (*Uploader, error) {
	if err := config.ValidateIngestURL(opts.IngestURL); err != nil {
		return nil, err
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 30
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 5 * time.Minute
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	return &Uploader{
		spool:          sp,
		ingestURL:      strings.TrimRight(opts.IngestURL, "/"),
		deviceToken:    opts.DeviceToken,
		batchSize:      opts.BatchSize,
		maxBackoff:     opts.MaxBackoff,
		requestTimeout: opts.RequestTimeout,
		client:         &http.Client{Timeout: opts.RequestTimeout},
	}, nil
}

// SetClient replaces the HTTP client. Intended for tests; the replacement
// must still perform certificate validation.
func (u *Uploader) SetClient(c *http.Client) { u.client = c }

// Backoff returns the current retry delay. Consecutive failures yield
// 1s, 2s, 4s, 8s, ... capped at MaxBackoff; one successful upload resets
// the sequence to the base delay.
func (u *Uploader) Backoff() time.Duration {
	attempt := u.attempt.Load()
	if attempt == 0 {
		return time.Second
	}
	shift := attempt - 1
	if shift >= 32 { // avoid << overflow; far beyond any sane cap anyway
		return u.maxBackoff
	}
	d := time.Second << shift
	if d > u.maxBackoff {
		return u.maxBackoff
	}
	return d
}

// UploadBatch runs one delivery cycle: peek up to batchSize entries, POST
// them, and on a 2xx response ack exactly the entry IDs that were sent.
//
// Returns (true, nil) when samples were delivered and acked, (false, nil)
// when the spool was empty, and (false, err) on any failure — in which
// case nothing was acked and the backoff counter has advanced.
func (u *Uploader) UploadBatch(ctx context.Context) (bool, error) {
	entries, err := u.spool.Peek(ctx, u.batchSize)
	if err != nil {
		return false, fmt.Errorf("peek spool: %w", err)
	}
	if len(entries) == 0 {
		uploadsTotal.WithLabelValues("empty").Inc()
		u.updateDepth(ctx)
		return false, nil
	}

	ids := make([]uint64, len(entries))
	samples := make([]domain.Sample, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		samples[i] = e.Sample
	}

	if err := u.post(ctx, samples); err != nil {
		u.attempt.Add(1)
		uploadsTotal.WithLabelValues("failed").Inc()
		u.updateDepth(ctx)
		return false, err
	}

	// The server holds the batch now; a shutdown signal must not tear
	// the delete in half, so the ack runs detached from cancellation.
	ackCtx := context.WithoutCancel(ctx)
	removed, err := u.spool.Ack(ackCtx, ids)
	if err != nil {
		// The server has the data; the rows will be re-sent and
		// deduplicated there. Still a failed cycle locally.
		u.attempt.Add(1)
		uploadsTotal.WithLabelValues("failed").Inc()
		return false, fmt.Errorf("ack %d entries: %w", len(ids), err)
	}

	u.attempt.Store(0)
	uploadsTotal.WithLabelValues("ok").Inc()
	samplesUploaded.Add(float64(len(samples)))
	u.updateDepth(ackCtx)

	log.Info().
		Int("samples", len(samples)).
		Int64("removed", removed).
		Uint64("first_id", ids[0]).
		Uint64("last_id", ids[len(ids)-1]).
		Msg("uploaded batch")
	return true, nil
}

// post sends one ingest request and returns an error unless the server
// answered 2xx with a parseable body.
func (u *Uploader) post(ctx context.Context, samples []domain.Sample) error {
	body, err := json.Marshal(ingestRequest{Samples: samples})
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, u.requestTimeout)
	defer cancel()

	url := u.ingestURL + "/v1/ingest"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+u.deviceToken)

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("post %s: status %d", url, resp.StatusCode)
	}

	var ir ingestResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return fmt.Errorf("post %s: decode response: %w", url, err)
	}

	log.Debug().Int("inserted", ir.Inserted).Int("sent", len(samples)).Msg("ingest accepted")
	return nil
}

func (u *Uploader) updateDepth(ctx context.Context) {
	if n, err := u.spool.Pending(ctx); err == nil {
		spoolDepth.Set(float64(n))
	}
}

// Run drives the upload loop until ctx is cancelled. After a successful
// or empty cycle it waits uploadInterval; after a failure it waits
// max(uploadInterval, Backoff()) so the agent never retries faster than
// the configured cadence. The wait is interruptible by shutdown, and an
// in-flight ack is allowed to finish before Run returns.
func (u *Uploader) Run(ctx context.Context, uploadInterval time.Duration, onResult func(ok bool)) {
	for {
		ok, err := u.UploadBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().
				Err(err).
				Uint32("attempt", u.attempt.Load()).
				Dur("next_backoff", u.Backoff()).
				Msg("upload failed, will retry")
		}
		if onResult != nil && (ok || err != nil) {
			onResult(ok)
		}

		delay := uploadInterval
		if err != nil && u.Backoff() > delay {
			delay = u.Backoff()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
