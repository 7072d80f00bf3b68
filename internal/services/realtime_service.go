// Package services – RealtimeService
//
// Serves the latest persisted reading for a device through a
// read-through cache: cache hit wins, a miss queries the store and
// refills the cache with a short TTL. Every cache interaction is
// best-effort; the database remains the source of truth.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/gridpulse/p1-telemetry/internal/cache"
	"github.com/gridpulse/p1-telemetry/internal/domain"
	"github.com/gridpulse/p1-telemetry/internal/repo"
)

// RealtimeService answers "what is this device reading right now".
type RealtimeService struct {
	DB    *gorm.DB
	Cache cache.Cache
	// TTL bounds how stale a cached reading may be. Values <= 0 default
	// to 5 seconds.
	TTL time.Duration
}

// Latest returns the most recent sample for deviceID, or ErrNoData when
// the device has never reported.
func (s *RealtimeService) Latest(ctx context.Context, deviceID string) (*domain.Sample, error) {
	key := RealtimeCacheKey(deviceID)

	if s.Cache != nil {
		if raw, ok, err := s.Cache.Get(ctx, key); err == nil && ok {
			var sm domain.Sample
			if err := json.Unmarshal(raw, &sm); err == nil {
				return &sm, nil
			}
			// Corrupt entry: drop it and fall through to the store.
			_ = s.Cache.Delete(ctx, key)
		} else if err != nil {
			log.Warn().Err(err).Str("device_id", deviceID).Msg("realtime cache read failed")
		}
	}

	sm, err := repo.LatestSample(ctx, s.DB, deviceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNoData
		}
		return nil, err
	}

	if s.Cache != nil {
		ttl := s.TTL
		if ttl <= 0 {
			ttl = 5 * time.Second
		}
		if raw, err := json.Marshal(sm); err == nil {
			if err := s.Cache.Set(ctx, key, raw, ttl); err != nil {
				log.Warn().Err(err).Str("device_id", deviceID).Msg("realtime cache write failed")
			}
		}
	}
	return sm, nil
}
