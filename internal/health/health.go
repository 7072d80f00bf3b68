// Package health reports the edge daemon's operational state: spool
// depth, the outcome and age of the last upload attempt, and the current
// retry backoff. The snapshot can be written to a JSON file on disk so a
// container healthcheck can verify the daemon is alive and draining.
package health

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gridpulse/p1-telemetry/internal/spool"
	"github.com/gridpulse/p1-telemetry/internal/uploader"
)

// Status is one health snapshot. Pointer fields are null until the first
// upload attempt has happened.
type Status struct {
	SpoolDepth         *int64   `json:"spool_depth"`
	LastUploadSuccess  *bool    `json:"last_upload_success"`
	LastUploadElapsedS *float64 `json:"last_upload_elapsed_s"`
	CurrentBackoffS    float64  `json:"current_backoff_s"`
	CheckedAt          string   `json:"checked_at"`
}

// Tracker records upload outcomes and renders Status snapshots.
// Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	lastOK *bool
	lastAt time.Time
	sp     *spool.Spool
	up     *uploader.Uploader
}

// NewTracker returns a tracker observing the given spool and uploader.
func NewTracker(sp *spool.Spool, up *uploader.Uploader) *Tracker {
	return &Tracker{sp: sp, up: up}
}

// RecordUpload notes the outcome of an upload cycle.
func (t *Tracker) RecordUpload(ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := ok
	t.lastOK = &v
	t.lastAt = time.Now()
}

// Snapshot builds the current health status. A failing spool count is
// reported as a null depth, not an error; health reporting never takes
// the daemon down.
func (t *Tracker) Snapshot(ctx context.Context) Status {
	t.mu.Lock()
	lastOK := t.lastOK
	lastAt := t.lastAt
	t.mu.Unlock()

	st := Status{
		CurrentBackoffS: t.up.Backoff().Seconds(),
		CheckedAt:       time.Now().UTC().Format(time.RFC3339),
	}

	if n, err := t.sp.Pending(ctx); err == nil {
		st.SpoolDepth = &n
	} else {
		log.Warn().Err(err).Msg("health: failed to read spool depth")
	}

	if lastOK != nil {
		st.LastUploadSuccess = lastOK
		elapsed := time.Since(lastAt).Seconds()
		st.LastUploadElapsedS = &elapsed
	}
	return st
}

// WriteFile writes the current snapshot to path as JSON. Failures are
// logged and swallowed.
func (t *Tracker) WriteFile(ctx context.Context, path string) {
	st := t.Snapshot(ctx)
	data, err := json.Marshal(st)
	if err != nil {
		log.Warn().Err(err).Msg("health: failed to encode snapshot")
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("health: failed to write file")
	}
}
