package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gridpulse/p1-telemetry/internal/domain"
	"github.com/gridpulse/p1-telemetry/internal/repo"
)

func TestValidFrame(t *testing.T) {
	for _, f := range []string{FrameDay, FrameMonth, FrameYear, FrameAll} {
		if !ValidFrame(f) {
			t.Errorf("ValidFrame(%q) = false", f)
		}
	}
	for _, f := range []string{"", "week", "DAY", "hour"} {
		if ValidFrame(f) {
			t.Errorf("ValidFrame(%q) = true", f)
		}
	}
}

func TestSeries_BadFrame(t *testing.T) {
	svc := &SeriesService{DB: newServiceDB(t)}
	if _, err := svc.Series(context.Background(), "m1", "week"); !errors.Is(err, ErrBadFrame) {
		t.Fatalf("expected ErrBadFrame, got %v", err)
	}
}

func TestSeries_DayFrame_HourBuckets(t *testing.T) {
	db := newServiceDB(t)
	now := time.Date(2026, 8, 23, 15, 30, 0, 0, time.UTC)
	svc := &SeriesService{DB: db, Now: func() time.Time { return now }}
	ctx := context.Background()

	imp0, imp1 := 100.0, 100.4
	_, err := repo.InsertSamples(ctx, db, []domain.Sample{
		{DeviceID: "m1", TS: now.Add(-2 * time.Hour), PowerW: 100, ImportPowerW: 100, EnergyImportKWh: &imp0},
		{DeviceID: "m1", TS: now.Add(-2*time.Hour + 10*time.Minute), PowerW: 300, ImportPowerW: 300, EnergyImportKWh: &imp1},
		{DeviceID: "m1", TS: now.Add(-time.Hour), PowerW: 500, ImportPowerW: 500},
		{DeviceID: "m1", TS: now.AddDate(0, 0, -1), PowerW: 9000, ImportPowerW: 9000}, // yesterday
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rollups, err := svc.Series(ctx, "m1", FrameDay)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(rollups) != 2 {
		t.Fatalf("got %d rollups, want 2 (yesterday excluded): %+v", len(rollups), rollups)
	}

	first := rollups[0]
	if !first.Bucket.Equal(now.Add(-2 * time.Hour).Truncate(time.Hour)) {
		t.Fatalf("first bucket = %v", first.Bucket)
	}
	if first.AvgPowerW != 200 || first.MaxPowerW != 300 || first.SampleCount != 2 {
		t.Fatalf("first rollup = %+v, want avg 200 max 300 count 2", first)
	}
	if first.EnergyImportKWh == nil || *first.EnergyImportKWh != 100.4-100.0 {
		t.Fatalf("energy delta = %v, want 0.4", first.EnergyImportKWh)
	}
	if rollups[1].AvgPowerW != 500 || rollups[1].SampleCount != 1 {
		t.Fatalf("second rollup = %+v", rollups[1])
	}
}

func TestSeries_EmptyRangeYieldsEmptySlice(t *testing.T) {
	svc := &SeriesService{DB: newServiceDB(t)}
	rollups, err := svc.Series(context.Background(), "m1", FrameAll)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if rollups == nil || len(rollups) != 0 {
		t.Fatalf("rollups = %#v, want empty non-nil slice", rollups)
	}
}

func TestRebucket_WeightedBySampleCount(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC)
	}
	// Aug 3 2026 is a Monday; days 3 and 4 fall in the same week.
	in := []Rollup{
		{Bucket: day(3), AvgPowerW: 100, MaxPowerW: 150, SampleCount: 10},
		{Bucket: day(4), AvgPowerW: 400, MaxPowerW: 900, SampleCount: 30},
		{Bucket: day(10), AvgPowerW: 700, MaxPowerW: 700, SampleCount: 5},
	}

	out := Rebucket(in, weekStart)
	if len(out) != 2 {
		t.Fatalf("got %d weeks, want 2: %+v", len(out), out)
	}

	wk := out[0]
	if !wk.Bucket.Equal(day(3)) {
		t.Fatalf("week bucket = %v, want Monday Aug 3", wk.Bucket)
	}
	// (100*10 + 400*30) / 40 = 325 — NOT (100+400)/2.
	if wk.AvgPowerW != 325 {
		t.Fatalf("weighted avg = %d, want 325", wk.AvgPowerW)
	}
	if wk.MaxPowerW != 900 || wk.SampleCount != 40 {
		t.Fatalf("week rollup = %+v", wk)
	}

	if !out[1].Bucket.Equal(day(10)) || out[1].AvgPowerW != 700 {
		t.Fatalf("second week = %+v", out[1])
	}
}

func TestRebucket_SumsEnergyCounters(t *testing.T) {
	e := func(v float64) *float64 { return &v }
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

	in := []Rollup{
		{Bucket: day, AvgPowerW: 100, SampleCount: 1, EnergyImportKWh: e(1.5)},
		{Bucket: day.AddDate(0, 0, 1), AvgPowerW: 100, SampleCount: 1, EnergyImportKWh: e(2.5)},
		{Bucket: day.AddDate(0, 0, 2), AvgPowerW: 100, SampleCount: 1}, // no counter
	}
	out := Rebucket(in, weekStart)
	if len(out) != 1 {
		t.Fatalf("got %d buckets, want 1", len(out))
	}
	if out[0].EnergyImportKWh == nil || *out[0].EnergyImportKWh != 4.0 {
		t.Fatalf("energy sum = %v, want 4.0", out[0].EnergyImportKWh)
	}
	if out[0].EnergyExportKWh != nil {
		t.Fatalf("export sum = %v, want nil (never reported)", out[0].EnergyExportKWh)
	}
}

func TestWeekStart(t *testing.T) {
	// Sunday Aug 23 2026 belongs to the week starting Monday Aug 17.
	sun := time.Date(2026, 8, 23, 13, 45, 0, 0, time.UTC)
	if got := weekStart(sun); !got.Equal(time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("weekStart(sunday) = %v", got)
	}
	// A Monday maps to itself at midnight.
	mon := time.Date(2026, 8, 17, 23, 0, 0, 0, time.UTC)
	if got := weekStart(mon); !got.Equal(time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("weekStart(monday) = %v", got)
	}
}

func TestCounterDelta_ClampsResets(t *testing.T) {
	e := func(v float64) *float64 { return &v }

	if d := counterDelta(e(10), e(12.5)); d == nil || *d != 2.5 {
		t.Fatalf("delta = %v, want 2.5", d)
	}
	// Counter reset mid-bucket must not go negative.
	if d := counterDelta(e(10), e(3)); d == nil || *d != 0 {
		t.Fatalf("reset delta = %v, want 0", d)
	}
	if d := counterDelta(nil, e(3)); d != nil {
		t.Fatalf("delta with missing first = %v, want nil", d)
	}
}

func TestSeries_YearFrame_MonthBuckets(t *testing.T) {
	db := newServiceDB(t)
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	svc := &SeriesService{DB: db, Now: func() time.Time { return now }}
	ctx := context.Background()

	_, err := repo.InsertSamples(ctx, db, []domain.Sample{
		testSample("m1", time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC), 100),
		testSample("m1", time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC), 300),
		testSample("m1", time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC), 500),
		testSample("m1", time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC), 9000), // previous year
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rollups, err := svc.Series(ctx, "m1", FrameYear)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(rollups) != 2 {
		t.Fatalf("got %d rollups, want 2: %+v", len(rollups), rollups)
	}
	if !rollups[0].Bucket.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) || rollups[0].AvgPowerW != 200 {
		t.Fatalf("march rollup = %+v", rollups[0])
	}
	if !rollups[1].Bucket.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)) || rollups[1].AvgPowerW != 500 {
		t.Fatalf("august rollup = %+v", rollups[1])
	}
}
