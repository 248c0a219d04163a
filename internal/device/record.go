package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/classroom-core/internal/appliance"
)

// Record is one decoded telemetry report.
type Record struct {
	DeviceID   string
	Time       time.Time
	SensorData map[string]any
	State      appliance.DeviceState
}

type rawRecord struct {
	DeviceID   string          `json:"device_id"`
	Time       *rawTime        `json:"time"`
	SensorData json.RawMessage `json:"sensor_data"`
	State      json.RawMessage `json:"state"`
}

type rawTime struct {
	Year   *int `json:"year"`
	Month  *int `json:"month"`
	Day    *int `json:"day"`
	Hour   *int `json:"hour"`
	Minute *int `json:"minute"`
}

// DecodeRecord parses a telemetry payload. Every error wraps
// ErrMalformedRecord. A missing sensor_data object is treated as empty;
// the state is decoded leniently and is not normalised here.
func DecodeRecord(payload []byte) (Record, error) {
	var raw rawRecord
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	if raw.DeviceID == "" {
		return Record{}, fmt.Errorf("%w: device_id is required", ErrMalformedRecord)
	}

	ts, err := raw.Time.toTime()
	if err != nil {
		return Record{}, err
	}

	if isAbsent(raw.State) {
		return Record{}, fmt.Errorf("%w: state is required", ErrMalformedRecord)
	}
	var state appliance.DeviceState
	if err := json.Unmarshal(raw.State, &state); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}

	sensors := map[string]any{}
	if !isAbsent(raw.SensorData) {
		if err := json.Unmarshal(raw.SensorData, &sensors); err != nil {
			return Record{}, fmt.Errorf("%w: sensor_data: %w", ErrMalformedRecord, err)
		}
		if sensors == nil {
			sensors = map[string]any{}
		}
	}

	return Record{
		DeviceID:   raw.DeviceID,
		Time:       ts,
		SensorData: sensors,
		State:      state,
	}, nil
}

// toTime builds the device wall clock. Calendar-invalid dates such as
// February 30 are rejected rather than rolled over.
func (t *rawTime) toTime() (time.Time, error) {
	if t == nil {
		return time.Time{}, fmt.Errorf("%w: time is required", ErrMalformedRecord)
	}
	fields := []struct {
		name     string
		v        *int
		min, max int
	}{
		{"year", t.Year, 1, 9999},
		{"month", t.Month, 1, 12},
		{"day", t.Day, 1, 31},
		{"hour", t.Hour, 0, 23},
		{"minute", t.Minute, 0, 59},
	}
	for _, f := range fields {
		if f.v == nil {
			return time.Time{}, fmt.Errorf("%w: time.%s is required", ErrMalformedRecord, f.name)
		}
		if *f.v < f.min || *f.v > f.max {
			return time.Time{}, fmt.Errorf("%w: time.%s %d out of range", ErrMalformedRecord, f.name, *f.v)
		}
	}

	ts := time.Date(*t.Year, time.Month(*t.Month), *t.Day, *t.Hour, *t.Minute, 0, 0, time.UTC)
	if ts.Day() != *t.Day {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d is not a calendar date",
			ErrMalformedRecord, *t.Year, *t.Month, *t.Day)
	}
	return ts, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Snapshot normalises the record's state and computes its power draw.
func (r Record) Snapshot() Snapshot {
	state := appliance.Normalize(r.State)
	return Snapshot{
		DeviceID:   r.DeviceID,
		ObservedAt: r.Time,
		Sensors:    ParseSensors(r.SensorData),
		State:      state,
		Power:      appliance.ComputePower(state),
	}
}
