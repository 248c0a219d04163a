// Package influxdb exports live classroom readings to InfluxDB.
//
// It is optional. SQLite keeps the hourly history that the API serves;
// InfluxDB receives every telemetry report (power, sensor values, how many
// appliances are on) and every scheduler firing, for dashboards that want
// minute resolution.
//
// Writes go through the non-blocking, batched write API of
// influxdb-client-go v2. Failures arrive asynchronously on the callback set
// with SetOnError.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without time-series export
//	}
package influxdb
