// Package history answers questions about stored telemetry: per-hour and
// per-day series for one data type, which dates have samples, and a
// summary report over a date range.
//
// Dates are device wall-clock dates ("2006-01-02"). A range [start, end]
// covers every sample from start 00:00 up to but excluding the day after
// end. Energy integrates power over time: each sample counts until the
// next one, at most one hour, so hourly and per-minute persistence give
// the same kWh for a steady load.
package history
