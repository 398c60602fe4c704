// Package influxdb exports sensor readings to InfluxDB v2.
//
// It wraps the official influxdb-client-go library with connection
// management, batched non-blocking writes and health checks. The
// telemetry package feeds it from the event bus; the SQLite time-series
// store remains the source of truth.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // export switched off
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { log.Warn("influx write failed", "error", err) })
//	client.WriteSensorReading("Thermo", "Kitchen", "temperature", 21.5, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use.
package influxdb
