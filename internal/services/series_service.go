// Package services – SeriesService
//
// Historical rollups for dashboards: hourly buckets for today, weekly
// buckets for the current month, calendar-month buckets for the current
// year and for all time. Rollups are computed from raw samples in one
// ordered pass. The month frame is the one place two aggregation layers
// compose (days re-bucketed into weeks); that re-bucketing uses
// sample-count weighted averages because a plain AVG over bucket
// averages would let thin buckets distort the result.
package services

import (
	"context"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/gridpulse/p1-telemetry/internal/domain"
	"github.com/gridpulse/p1-telemetry/internal/repo"
)

// Frame names accepted by the series API.
const (
	FrameDay   = "day"
	FrameMonth = "month"
	FrameYear  = "year"
	FrameAll   = "all"
)

// Rollup is one aggregated bucket of a series.
type Rollup struct {
	Bucket          time.Time `json:"bucket"`
	AvgPowerW       int       `json:"avg_power_w"`
	MaxPowerW       int       `json:"max_power_w"`
	SampleCount     int64     `json:"sample_count"`
	EnergyImportKWh *float64  `json:"energy_import_kwh"`
	EnergyExportKWh *float64  `json:"energy_export_kwh"`
}

// SeriesService serves aggregated history. Pure read path.
type SeriesService struct {
	DB *gorm.DB
	// Now is the clock; nil means time.Now. Injected for tests.
	Now func() time.Time
}

// ValidFrame reports whether frame is one of the accepted names.
func ValidFrame(frame string) bool {
	switch frame {
	case FrameDay, FrameMonth, FrameYear, FrameAll:
		return true
	}
	return false
}

// Series returns the rollups for deviceID over the named frame:
//
//   - day:   hour buckets over the current UTC day
//   - month: day buckets over the current month, re-bucketed to weeks
//   - year:  calendar-month buckets over the current year
//   - all:   calendar-month buckets over everything on record
func (s *SeriesService) Series(ctx context.Context, deviceID, frame string) ([]Rollup, error) {
	if !ValidFrame(frame) {
		return nil, ErrBadFrame
	}

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}

	var (
		start, end time.Time
		trunc      func(time.Time) time.Time
	)
	switch frame {
	case FrameDay:
		start = now.Truncate(24 * time.Hour)
		end = start.AddDate(0, 0, 1)
		trunc = func(t time.Time) time.Time { return t.Truncate(time.Hour) }
	case FrameMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
		trunc = func(t time.Time) time.Time { return t.Truncate(24 * time.Hour) }
	case FrameYear:
		start = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(1, 0, 0)
		trunc = monthStart
	case FrameAll:
		start = time.Unix(0, 0).UTC()
		end = now.AddDate(0, 0, 1)
		trunc = monthStart
	}

	samples, err := repo.SamplesInRange(ctx, s.DB, deviceID, start, end)
	if err != nil {
		return nil, err
	}

	rollups := rollup(samples, trunc)
	if frame == FrameMonth {
		rollups = Rebucket(rollups, weekStart)
	}
	return rollups, nil
}

// rollup aggregates time-ordered samples into buckets keyed by trunc(ts).
// Per bucket: sample-exact average and max of import_power_w, and the
// within-bucket delta of each cumulative energy counter.
func rollup(samples []domain.Sample, trunc func(time.Time) time.Time) []Rollup {
	out := []Rollup{}
	if len(samples) == 0 {
		return out
	}

	var (
		cur               time.Time
		sum               int64
		count             int64
		maxW              int
		firstImp, lastImp *float64
		firstExp, lastExp *float64
		open              bool
	)
	flush := func() {
		if !open || count == 0 {
			return
		}
		r := Rollup{
			Bucket:      cur,
			AvgPowerW:   int(math.Round(float64(sum) / float64(count))),
			MaxPowerW:   maxW,
			SampleCount: count,
		}
		r.EnergyImportKWh = counterDelta(firstImp, lastImp)
		r.EnergyExportKWh = counterDelta(firstExp, lastExp)
		out = append(out, r)

		sum, count, maxW = 0, 0, 0
		firstImp, lastImp, firstExp, lastExp = nil, nil, nil, nil
	}

	for _, sm := range samples {
		b := trunc(sm.TS.UTC())
		if !open || !b.Equal(cur) {
			flush()
			cur, open = b, true
		}
		sum += int64(sm.ImportPowerW)
		count++
		if sm.ImportPowerW > maxW {
			maxW = sm.ImportPowerW
		}
		if sm.EnergyImportKWh != nil {
			if firstImp == nil {
				firstImp = sm.EnergyImportKWh
			}
			lastImp = sm.EnergyImportKWh
		}
		if sm.EnergyExportKWh != nil {
			if firstExp == nil {
				firstExp = sm.EnergyExportKWh
			}
			lastExp = sm.EnergyExportKWh
		}
	}
	flush()
	return out
}

// Rebucket merges fine rollups into coarser buckets keyed by trunc. The
// combined average weighs each input by its sample count — never a plain
// average of averages.
func Rebucket(in []Rollup, trunc func(time.Time) time.Time) []Rollup {
	out := []Rollup{}
	if len(in) == 0 {
		return out
	}

	var (
		cur      time.Time
		weighted int64
		count    int64
		maxW     int
		impSum   *float64
		expSum   *float64
		open     bool
	)
	flush := func() {
		if !open || count == 0 {
			return
		}
		out = append(out, Rollup{
			Bucket:          cur,
			AvgPowerW:       int(math.Round(float64(weighted) / float64(count))),
			MaxPowerW:       maxW,
			SampleCount:     count,
			EnergyImportKWh: impSum,
			EnergyExportKWh: expSum,
		})
		weighted, count, maxW = 0, 0, 0
		impSum, expSum = nil, nil
	}

	for _, r := range in {
		b := trunc(r.Bucket)
		if !open || !b.Equal(cur) {
			flush()
			cur, open = b, true
		}
		weighted += int64(r.AvgPowerW) * r.SampleCount
		count += r.SampleCount
		if r.MaxPowerW > maxW {
			maxW = r.MaxPowerW
		}
		impSum = addCounter(impSum, r.EnergyImportKWh)
		expSum = addCounter(expSum, r.EnergyExportKWh)
	}
	flush()
	return out
}

// counterDelta returns last-first for a cumulative counter, clamped at
// zero (a meter swap can reset the counter mid-bucket).
func counterDelta(first, last *float64) *float64 {
	if first == nil || last == nil {
		return nil
	}
	d := *last - *first
	if d < 0 {
		d = 0
	}
	return &d
}

func addCounter(acc, v *float64) *float64 {
	if v == nil {
		return acc
	}
	if acc == nil {
		c := *v
		return &c
	}
	c := *acc + *v
	return &c
}

// monthStart truncates t to the first instant of its calendar month.
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// weekStart truncates t to the preceding Monday midnight UTC.
func weekStart(t time.Time) time.Time {
	d := t.Truncate(24 * time.Hour)
	offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
	return d.AddDate(0, 0, -offset)
}
