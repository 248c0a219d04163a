package device

import (
	"strconv"
	"strings"
)

// sensor_data keys published by the controller.
const (
	sensorTemperature = "temp"
	sensorHumidity    = "humidity"
	sensorLux         = "lux"
	sensorPerson      = "person"
)

// ParseSensors extracts typed readings from a sensor_data object. Numbers
// may arrive as JSON numbers or numeric strings; person is "true"/"false".
// Unusable readings are left nil.
func ParseSensors(raw map[string]any) Sensors {
	s := Sensors{Raw: copyMap(raw)}
	s.Temperature = sensorNumber(raw, sensorTemperature)
	s.Humidity = sensorNumber(raw, sensorHumidity)
	s.Lux = sensorNumber(raw, sensorLux)
	s.Occupied = sensorFlag(raw, sensorPerson)
	return s
}

func sensorNumber(raw map[string]any, key string) *float64 {
	switch v := raw[key].(type) {
	case float64:
		return &v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

func sensorFlag(raw map[string]any, key string) *bool {
	var b bool
	switch v := raw[key].(type) {
	case bool:
		b = v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			b = true
		case "false", "0", "no":
			b = false
		default:
			return nil
		}
	case float64:
		b = v != 0
	default:
		return nil
	}
	return &b
}
