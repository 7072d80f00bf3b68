// Package normalize turns raw P1 meter payloads into canonical samples.
// The conversion is pure: the timestamp is injected by the caller so the
// poll loop (and tests) control the clock.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gridpulse/p1-telemetry/internal/domain"
)

// ErrMissingField is wrapped by Sample when a required raw field is absent.
var ErrMissingField = errors.New("raw measurement missing required field")

// RawMeasurement mirrors the meter's local-API measurement payload. Only
// the fields this pipeline consumes are bound; pointers distinguish absent
// from zero.
type RawMeasurement struct {
	PowerW          *float64 `json:"power_w"`
	EnergyImportKWh *float64 `json:"energy_import_kwh"`
	EnergyExportKWh *float64 `json:"energy_export_kwh"`
}

// Sample converts a raw measurement into a canonical sample for deviceID
// at instant ts. The import_power_w derivation (max(power_w, 0)) happens
// here and nowhere else on the edge.
func Sample(raw RawMeasurement, deviceID string, ts time.Time) (domain.Sample, error) {
	if raw.PowerW == nil {
		return domain.Sample{}, fmt.Errorf("%w: power_w", ErrMissingField)
	}
	if raw.EnergyImportKWh == nil {
		return domain.Sample{}, fmt.Errorf("%w: energy_import_kwh", ErrMissingField)
	}
	if raw.EnergyExportKWh == nil {
		return domain.Sample{}, fmt.Errorf("%w: energy_export_kwh", ErrMissingField)
	}

	powerW := int(math.Round(*raw.PowerW))
	importW := powerW
	if importW < 0 {
		importW = 0
	}

	imp := *raw.EnergyImportKWh
	exp := *raw.EnergyExportKWh
	return domain.Sample{
		DeviceID:        deviceID,
		TS:              ts.UTC(),
		PowerW:          powerW,
		ImportPowerW:    importW,
		EnergyImportKWh: &imp,
		EnergyExportKWh: &exp,
	}, nil
}
