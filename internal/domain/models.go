// Package domain defines the persistence models and the canonical wire
// shape for P1 energy telemetry. These types are mapped with GORM and are
// shared by the edge spool, the ingest API, and the read APIs, so the JSON
// tags here ARE the wire contract and must not drift.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Sample is one timestamped measurement from a P1 meter. Its identity is
// the composite key (device_id, ts); the ingest path relies on that key
// for conflict-free, idempotent inserts.
//
// Fields:
//   - DeviceID: stable device identifier (PK part).
//   - TS: measurement instant in UTC (PK part).
//   - PowerW: signed instantaneous power in watts; negative means export.
//   - ImportPowerW: imported power in watts, always max(PowerW, 0).
//   - EnergyImportKWh / EnergyExportKWh: optional cumulative counters.
type Sample struct {
	DeviceID        string    `json:"device_id"         gorm:"type:text;primaryKey"`
	TS              time.Time `json:"ts"                gorm:"primaryKey"`
	PowerW          int       `json:"power_w"           gorm:"not null"`
	ImportPowerW    int       `json:"import_power_w"    gorm:"not null"`
	EnergyImportKWh *float64  `json:"energy_import_kwh"`
	EnergyExportKWh *float64  `json:"energy_export_kwh"`
}

// TableName returns the database table name for Sample.
func (Sample) TableName() string { return "p1_samples" }

// SpoolEntry is a Sample buffered on the edge device, plus the
// monotonically increasing rowid that fixes its FIFO position. Entries are
// immutable once written; the only mutation is deletion after the server
// acknowledged the entry.
type SpoolEntry struct {
	ID              uint64    `json:"-" gorm:"primaryKey;autoIncrement"`
	DeviceID        string    `json:"device_id"         gorm:"type:text;not null"`
	TS              time.Time `json:"ts"                gorm:"not null"`
	PowerW          int       `json:"power_w"           gorm:"not null"`
	ImportPowerW    int       `json:"import_power_w"    gorm:"not null"`
	EnergyImportKWh *float64  `json:"energy_import_kwh"`
	EnergyExportKWh *float64  `json:"energy_export_kwh"`
	CreatedAt       time.Time `json:"-"`
}

// TableName returns the database table name for SpoolEntry.
func (SpoolEntry) TableName() string { return "spool" }

// Sample converts the entry back into its wire/persistence form.
func (e SpoolEntry) Sample() Sample {
	return Sample{
		DeviceID:        e.DeviceID,
		TS:              e.TS,
		PowerW:          e.PowerW,
		ImportPowerW:    e.ImportPowerW,
		EnergyImportKWh: e.EnergyImportKWh,
		EnergyExportKWh: e.EnergyExportKWh,
	}
}

// NewSpoolEntry builds a spool row from a sample. The ID is assigned by
// the database on insert.
func NewSpoolEntry(s Sample) SpoolEntry {
	return SpoolEntry{
		DeviceID:        s.DeviceID,
		TS:              s.TS,
		PowerW:          s.PowerW,
		ImportPowerW:    s.ImportPowerW,
		EnergyImportKWh: s.EnergyImportKWh,
		EnergyExportKWh: s.EnergyExportKWh,
	}
}

// AutoMigrateServer applies the server-side schema (the samples table).
func AutoMigrateServer(db *gorm.DB) error {
	return db.AutoMigrate(&Sample{})
}

// AutoMigrateSpool applies the edge-side schema (the spool table).
func AutoMigrateSpool(db *gorm.DB) error {
	return db.AutoMigrate(&SpoolEntry{})
}
