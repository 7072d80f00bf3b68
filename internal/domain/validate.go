// Sample validation.
//
// The ingest API rejects a whole batch when any sample violates these
// rules, so each check returns a descriptive error naming the field.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSample wraps every validation failure so callers can detect
// the class with errors.Is without matching message text.
var ErrInvalidSample = errors.New("invalid sample")

// Validate checks a sample against the data-model invariants:
//
//   - device_id must be non-empty
//   - ts must be set and not lie in the future beyond skew
//   - import_power_w must equal max(power_w, 0)
//   - cumulative energy counters, when present, must be >= 0
//
// now is injected so callers (and tests) control the clock.
func (s Sample) Validate(now time.Time, skew time.Duration) error {
	if s.DeviceID == "" {
		return fmt.Errorf("%w: device_id is empty", ErrInvalidSample)
	}
	if s.TS.IsZero() {
		return fmt.Errorf("%w: ts is not set", ErrInvalidSample)
	}
	if s.TS.After(now.Add(skew)) {
		return fmt.Errorf("%w: ts %s is in the future", ErrInvalidSample, s.TS.UTC().Format(time.RFC3339))
	}
	want := s.PowerW
	if want < 0 {
		want = 0
	}
	if s.ImportPowerW != want {
		return fmt.Errorf("%w: import_power_w %d does not equal max(power_w, 0) = %d",
			ErrInvalidSample, s.ImportPowerW, want)
	}
	if s.EnergyImportKWh != nil && *s.EnergyImportKWh < 0 {
		return fmt.Errorf("%w: energy_import_kwh is negative", ErrInvalidSample)
	}
	if s.EnergyExportKWh != nil && *s.EnergyExportKWh < 0 {
		return fmt.Errorf("%w: energy_export_kwh is negative", ErrInvalidSample)
	}
	return nil
}
