package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSensor = "appliance_sensor"
	MeasurementState  = "appliance_state"
)

// tagSerial is the only tag written: one series per appliance.
const tagSerial = "serial"

// WriteSensor queues one environmental reading for an appliance.
//
//	client.WriteSensor("AB1-EU-KAA0001A",
//	    map[string]any{"temperature_c": 21, "humidity_pct": 40}, time.Now())
func (c *Client) WriteSensor(serial string, fields map[string]any, ts time.Time) {
	c.writeSerial(MeasurementSensor, serial, fields, ts)
}

// WriteState queues one operational snapshot for an appliance.
func (c *Client) WriteState(serial string, fields map[string]any, ts time.Time) {
	c.writeSerial(MeasurementState, serial, fields, ts)
}

// writeSerial drops points with no fields, and everything after Close.
func (c *Client) writeSerial(measurement, serial string, fields map[string]any, ts time.Time) {
	if len(fields) == 0 || !c.IsConnected() {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, map[string]string{tagSerial: serial}, fields, ts))
}
