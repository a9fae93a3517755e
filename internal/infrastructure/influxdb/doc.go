// Package influxdb provides InfluxDB connectivity for appliance telemetry.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched writes and health monitoring.
//
// Two measurements are written, both tagged by appliance serial:
//   - appliance_sensor: temperature, humidity, particulates, VOC, NOx
//   - appliance_state: power, fan speed, modes, position
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSensor(serial, map[string]any{"temperature_c": 21}, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes; write errors
// are delivered to the SetOnError callback.
package influxdb
