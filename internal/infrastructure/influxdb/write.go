package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	telemetryMeasurement = "classroom_telemetry"
	firingMeasurement    = "classroom_rule_firing"
)

// Telemetry is one device report flattened for export. Nil sensor fields
// are omitted from the point.
type Telemetry struct {
	DeviceID    string
	Time        time.Time
	PowerWatts  float64
	Temperature *float64
	Humidity    *float64
	Lux         *float64
	Occupied    *bool
	LEDsOn      int
	ACOn        bool
	Multimedia  string
}

// Firing records one scheduler occurrence.
type Firing struct {
	RuleID       string
	RuleName     string
	OccurrenceAt time.Time
	Dispatched   bool
}

// WriteTelemetry queues a telemetry point. Dropped silently when the
// client is closed.
func (c *Client) WriteTelemetry(t Telemetry) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(telemetryPoint(t))
}

// WriteFiring queues a rule-firing point.
func (c *Client) WriteFiring(f Firing) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(firingPoint(f))
}

func telemetryPoint(t Telemetry) *write.Point {
	fields := map[string]interface{}{
		"power_watts": t.PowerWatts,
		"leds_on":     t.LEDsOn,
		"ac_on":       t.ACOn,
	}
	if t.Temperature != nil {
		fields["temperature"] = *t.Temperature
	}
	if t.Humidity != nil {
		fields["humidity"] = *t.Humidity
	}
	if t.Lux != nil {
		fields["lux"] = *t.Lux
	}
	if t.Occupied != nil {
		fields["occupied"] = *t.Occupied
	}

	tags := map[string]string{"device_id": t.DeviceID}
	if t.Multimedia != "" {
		tags["multimedia"] = t.Multimedia
	}

	ts := t.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(telemetryMeasurement, tags, fields, ts)
}

func firingPoint(f Firing) *write.Point {
	return write.NewPoint(
		firingMeasurement,
		map[string]string{
			"rule_id":   f.RuleID,
			"rule_name": f.RuleName,
		},
		map[string]interface{}{
			"dispatched": f.Dispatched,
		},
		f.OccurrenceAt,
	)
}
