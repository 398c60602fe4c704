package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// SensorMeasurement is the measurement that holds sensor readings.
const SensorMeasurement = "sensor_readings"

// WriteSensorReading records one sub-value of a sensor ingest.
//
//	client.WriteSensorReading("Meter", "Utility", "energy", 1532.4, at)
//
// Tags: sensor, room, subname. Field: value. The write is buffered.
func (c *Client) WriteSensorReading(sensor, room, subName string, value float64, at time.Time) {
	c.WritePoint(SensorMeasurement,
		map[string]string{
			"sensor":  sensor,
			"room":    room,
			"subname": subName,
		},
		map[string]any{"value": value},
		at,
	)
}

// WritePoint writes a point with arbitrary tags and fields. A zero
// timestamp means now. Writes on a closed client are dropped.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if c == nil || !c.IsConnected() {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
