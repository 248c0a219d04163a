// Package device holds what the core knows about the classroom controller.
//
// The controller publishes one telemetry report at a time: its own wall
// clock (minute resolution), raw sensor readings and the appliance state.
// This package decodes those reports, keeps the most recent one as a
// Snapshot, and persists hourly samples for history queries.
//
// # Key Types
//
//   - Record: a decoded telemetry report (DecodeRecord)
//   - Snapshot: the latest report plus its computed power draw
//   - Store: mutex-guarded holder of the latest Snapshot
//   - TelemetryRepository: SQLite storage of hourly samples
//
// # Device time
//
// Device timestamps carry no zone. They are held as time.Time values in
// UTC whose wall clock equals the device's, and stored as
// "2006-01-02T15:04:05" strings (see WallClockLayout).
//
// # Thread Safety
//
// Store is safe for concurrent use. Every Read returns a deep copy, so
// callers may modify what they get without affecting the stored value.
package device
