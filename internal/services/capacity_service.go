// Package services – CapacityService
//
// The capacity tariff is billed on the highest 15-minute average import
// power in a calendar month ("kwartierpiek"). This file computes that
// peak in a single aggregation pass over raw samples: buckets are
// epoch-aligned 15-minute windows, each bucket's value is the arithmetic
// mean of import_power_w over the samples falling inside it, and the peak
// is the maximum bucket average with ties resolved to the earliest
// bucket. Rolled-up views are never consulted here — re-deriving a peak
// from averages of averages would be numerically wrong.
package services

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/gridpulse/p1-telemetry/internal/repo"
)

// BucketWidth is the fixed capacity-tariff window size.
const BucketWidth = 15 * time.Minute

// monthRe is the strict YYYY-MM pattern: 4-digit year, 2-digit month 01-12.
var monthRe = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Bucket is one 15-minute window with at least one sample.
type Bucket struct {
	Start     time.Time `json:"bucket"`
	AvgPowerW int       `json:"avg_power_w"`
}

// CapacityResult is the outcome of a peak query. PeakW and PeakBucket are
// nil when the period holds no data — an empty month is a success, not an
// error.
type CapacityResult struct {
	Buckets    []Bucket
	PeakW      *int
	PeakBucket *time.Time
}

// CapacityService computes capacity-tariff peaks. Pure read path.
type CapacityService struct {
	DB *gorm.DB
}

// ParseMonth parses a strict YYYY-MM string into the UTC month start and
// the start of the following month. Anything else is ErrBadMonth.
func ParseMonth(month string) (start, end time.Time, err error) {
	if !monthRe.MatchString(month) {
		return time.Time{}, time.Time{}, ErrBadMonth
	}
	year, _ := strconv.Atoi(month[:4])
	m, _ := strconv.Atoi(month[5:])

	start = time.Date(year, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end, nil
}

// PeakForMonth computes the per-bucket averages and the monthly peak for
// deviceID over the named calendar month.
func (s *CapacityService) PeakForMonth(ctx context.Context, deviceID, month string) (CapacityResult, error) {
	start, end, err := ParseMonth(month)
	if err != nil {
		return CapacityResult{}, err
	}
	return s.PeakForPeriod(ctx, deviceID, start, end)
}

// PeakForPeriod computes 15-minute bucket averages over [start, end) and
// the peak among them. Buckets with zero samples are omitted, never
// reported as zero.
func (s *CapacityService) PeakForPeriod(ctx context.Context, deviceID string, start, end time.Time) (CapacityResult, error) {
	samples, err := repo.SamplesInRange(ctx, s.DB, deviceID, start, end)
	if err != nil {
		return CapacityResult{}, err
	}

	res := CapacityResult{Buckets: []Bucket{}}
	if len(samples) == 0 {
		return res, nil
	}

	// Samples arrive ordered by ts, so buckets close in order and one
	// pass suffices.
	var (
		cur   time.Time
		sum   int64
		count int64
		open  bool
	)
	flush := func() {
		if !open || count == 0 {
			return
		}
		avg := int(math.Round(float64(sum) / float64(count)))
		res.Buckets = append(res.Buckets, Bucket{Start: cur, AvgPowerW: avg})
		sum, count = 0, 0
	}

	for _, sm := range samples {
		// Truncate against the Unix epoch gives absolute :00/:15/:30/:45
		// boundaries regardless of the query's start time.
		b := sm.TS.UTC().Truncate(BucketWidth)
		if !open || !b.Equal(cur) {
			flush()
			cur, open = b, true
		}
		sum += int64(sm.ImportPowerW)
		count++
	}
	flush()

	for i, b := range res.Buckets {
		// Strictly-greater keeps the earliest bucket on ties.
		if res.PeakW == nil || b.AvgPowerW > *res.PeakW {
			res.PeakW = &res.Buckets[i].AvgPowerW
			res.PeakBucket = &res.Buckets[i].Start
		}
	}
	return res, nil
}
