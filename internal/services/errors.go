// Package services defines the business logic for ingesting telemetry
// and serving the read APIs. This file centralizes common service-level
// error values so that they can be consistently returned by service
// methods and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into HTTP status codes is performed at the handler layer.
package services

import "errors"

var (
	// ErrEmptyBatch is returned when an ingest request carries no samples.
	ErrEmptyBatch = errors.New("batch is empty")

	// ErrBatchTooLarge is returned when an ingest request exceeds the
	// configured maximum batch size.
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")

	// ErrDeviceMismatch is returned when any sample in a batch names a
	// device other than the authenticated caller's bound device. The
	// whole batch is rejected, including its valid samples.
	ErrDeviceMismatch = errors.New("sample device_id does not match caller identity")

	// ErrNoData indicates that the requested device has no persisted
	// samples (realtime read path).
	ErrNoData = errors.New("no data for device")

	// ErrBadMonth is returned for a month string that is not strict
	// YYYY-MM. It is a client error, distinct from an empty result.
	ErrBadMonth = errors.New("month must be YYYY-MM")

	// ErrBadFrame is returned for an unknown series frame.
	ErrBadFrame = errors.New("invalid frame")
)
