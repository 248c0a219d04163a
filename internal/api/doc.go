// Package api implements the HTTP REST API and WebSocket live feed for the
// classroom controller.
//
// This package provides:
//   - the latest device snapshot and historical telemetry queries
//   - direct, intent-based and semantic appliance control
//   - automation rule authoring and the scheduler's firing log
//   - the audit trail of control messages and rule changes
//   - a WebSocket hub relaying telemetry, control and rule events
//   - JWT authentication with role permissions, and ticket-based
//     WebSocket auth
//   - a middleware stack (request ID, logging, recovery, CORS, body limit)
//
// All routes live under /api/v1. Errors are JSON objects of the form
// {"status": 400, "code": "bad_request", "message": "..."}.
//
// # Graceful Degradation
//
// The server runs without MQTT: reads, history and rule authoring work and
// only control endpoints fail with 503.
package api
