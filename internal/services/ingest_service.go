// Package services – IngestService
//
// This file implements the idempotent receiver's core. Ingest applies
// its gates in a fixed order — batch shape, caller identity, per-sample
// validation — and only then writes, using the conflict-free insert so
// retried or racing duplicate batches can never produce a second row for
// the same (device_id, ts) key. Every gate rejects the batch whole; there
// is no partial acceptance.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/gridpulse/p1-telemetry/internal/cache"
	"github.com/gridpulse/p1-telemetry/internal/domain"
	"github.com/gridpulse/p1-telemetry/internal/repo"
)

// RealtimeCacheKey returns the cache key holding a device's latest
// reading. Shared by the ingest (invalidation) and realtime (read-through)
// paths so they can never disagree.
func RealtimeCacheKey(deviceID string) string {
	return "realtime:" + deviceID
}

// IngestService persists sample batches submitted by edge devices.
type IngestService struct {
	// DB is the database handle used for all inserts.
	DB *gorm.DB
	// Cache is the side channel holding each device's latest reading.
	// Invalidation through it is best-effort.
	Cache cache.Cache
	// MaxBatch caps the number of samples per call. Values < 1 default
	// to 1000.
	MaxBatch int
	// ClockSkew is the tolerance applied to the non-future-timestamp
	// check.
	ClockSkew time.Duration
	// Now is the clock; nil means time.Now. Injected for tests.
	Now func() time.Time
}

// Ingest validates and persists a batch on behalf of callerDevice.
//
// Gates, in order, each rejecting the whole batch:
//  1. ErrEmptyBatch / ErrBatchTooLarge for a malformed batch shape.
//  2. ErrDeviceMismatch when any sample's device_id differs from
//     callerDevice — a caller may never write under another device's name.
//  3. domain.ErrInvalidSample (wrapped) when any sample violates the data
//     model, including timestamps beyond now+ClockSkew.
//
// The insert itself skips already-present (device_id, ts) rows; the
// returned count reflects only genuinely new rows. When at least one row
// was inserted the device's realtime cache entry is invalidated; a cache
// failure is logged and does not fail the call.
func (s *IngestService) Ingest(ctx context.Context, callerDevice string, samples []domain.Sample) (int64, error) {
	maxBatch := s.MaxBatch
	if maxBatch < 1 {
		maxBatch = 1000
	}

	if len(samples) == 0 {
		return 0, ErrEmptyBatch
	}
	if len(samples) > maxBatch {
		return 0, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(samples), maxBatch)
	}

	for _, sm := range samples {
		if sm.DeviceID != callerDevice {
			return 0, fmt.Errorf("%w: %q (caller %q)", ErrDeviceMismatch, sm.DeviceID, callerDevice)
		}
	}

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	for i, sm := range samples {
		if err := sm.Validate(now, s.ClockSkew); err != nil {
			return 0, fmt.Errorf("sample %d: %w", i, err)
		}
	}

	inserted, err := repo.InsertSamples(ctx, s.DB, samples)
	if err != nil {
		return 0, err
	}

	if inserted > 0 && s.Cache != nil {
		if err := s.Cache.Delete(ctx, RealtimeCacheKey(callerDevice)); err != nil {
			log.Warn().Err(err).Str("device_id", callerDevice).
				Msg("realtime cache invalidation failed")
		}
	}
	return inserted, nil
}

// IsContractViolation reports whether err belongs to the ingest error
// class that a retry of the identical batch cannot fix.
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrBatchTooLarge) ||
		errors.Is(err, domain.ErrInvalidSample)
}
