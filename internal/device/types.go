package device

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/classroom-core/internal/appliance"
)

// WallClockLayout formats device time. It deliberately carries no zone.
const WallClockLayout = "2006-01-02T15:04:05"

// DateLayout formats the calendar date of a device time.
const DateLayout = "2006-01-02"

// Snapshot is the most recent report from a device, with its power draw
// computed from the normalised state.
type Snapshot struct {
	DeviceID   string
	ObservedAt time.Time
	Sensors    Sensors
	State      appliance.DeviceState
	Power      float64
}

// Sensors are the readings a device attached to a report. The typed
// fields are nil when the reading was missing or unusable. Raw keeps the
// report's sensor_data object as received.
type Sensors struct {
	Temperature *float64
	Humidity    *float64
	Lux         *float64
	Occupied    *bool
	Raw         map[string]any
}

// snapshotJSON is the shape served by the API.
type snapshotJSON struct {
	DeviceID   string                `json:"device_id"`
	Timestamp  string                `json:"timestamp"`
	SensorData map[string]any        `json:"sensor_data"`
	State      appliance.DeviceState `json:"state"`
	Power      float64               `json:"power"`
}

// MarshalJSON encodes the snapshot with a zone-less timestamp.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	raw := s.Sensors.Raw
	if raw == nil {
		raw = map[string]any{}
	}
	return json.Marshal(snapshotJSON{
		DeviceID:   s.DeviceID,
		Timestamp:  s.ObservedAt.Format(WallClockLayout),
		SensorData: raw,
		State:      s.State,
		Power:      s.Power,
	})
}

// DeepCopy returns a copy that shares no memory with s.
func (s Snapshot) DeepCopy() Snapshot {
	out := s
	out.Sensors = s.Sensors.DeepCopy()
	return out
}

// DeepCopy returns a copy that shares no memory with s.
func (s Sensors) DeepCopy() Sensors {
	return Sensors{
		Temperature: copyPtr(s.Temperature),
		Humidity:    copyPtr(s.Humidity),
		Lux:         copyPtr(s.Lux),
		Occupied:    copyPtr(s.Occupied),
		Raw:         copyMap(s.Raw),
	}
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// copyMap deep copies a decoded JSON object.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return copyMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
