// Package telemetry ingests device reports from MQTT.
//
// Each well-formed report replaces the latest snapshot, advances the
// scheduler's device clock, and is optionally persisted and exported.
// Malformed reports are logged and dropped without touching any state.
package telemetry
