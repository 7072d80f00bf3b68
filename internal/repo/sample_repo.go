// Package repo implements the data persistence layer for telemetry
// samples, backed by GORM. This file provides repository functions for
// the Sample model.
//
// All functions are context-aware and accept a *gorm.DB handle, making
// them safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only
// persistence and query composition.
//
// Error semantics:
//   - When no sample exists, LatestSample returns gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gridpulse/p1-telemetry/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// InsertSamples performs the conflict-free batch insert: rows whose
// (device_id, ts) key already exists are silently skipped, not
// overwritten. The returned count includes only genuinely new rows,
// which is what makes retried and concurrently-duplicated batches safe
// without any application-level locking.
func InsertSamples(ctx context.Context, db *gorm.DB, samples []domain.Sample) (int64, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}, {Name: "ts"}},
			DoNothing: true,
		}).
		Create(&samples)
	return res.RowsAffected, res.Error
}

// LatestSample returns the most recent sample for deviceID, or
// ErrNotFound when the device has no data.
func LatestSample(ctx context.Context, db *gorm.DB, deviceID string) (*domain.Sample, error) {
	var s domain.Sample
	err := db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("ts DESC").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SamplesInRange returns all samples for deviceID with start <= ts < end,
// ordered by ts ascending. An empty range yields an empty slice.
//
// The aggregation services consume this in a single ordered pass; keeping
// the ordering here means they never need to sort.
func SamplesInRange(ctx context.Context, db *gorm.DB, deviceID string, start, end time.Time) ([]domain.Sample, error) {
	var out []domain.Sample
	err := db.WithContext(ctx).
		Where("device_id = ? AND ts >= ? AND ts < ?", deviceID, start, end).
		Order("ts ASC").
		Find(&out).Error
	return out, err
}

// CountSamples returns the number of persisted samples for deviceID.
func CountSamples(ctx context.Context, db *gorm.DB, deviceID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Sample{}).
		Where("device_id = ?", deviceID).
		Count(&n).Error
	return n, err
}
