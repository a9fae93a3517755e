package device

import "time"

// PointWriter accepts telemetry points. influxdb.Client satisfies it.
type PointWriter interface {
	WriteSensor(serial string, fields map[string]any, ts time.Time)
	WriteState(serial string, fields map[string]any, ts time.Time)
}

// TelemetryRecorder returns a Registry listener that writes each Update
// as a time-series point. Sensor messages produce a sensor point; state
// and location messages produce a state point.
func TelemetryRecorder(w PointWriter) func(Update) {
	return func(u Update) {
		switch u.Kind {
		case MsgSensorData:
			w.WriteSensor(u.Serial, sensorFields(u.Sensor), u.At)
		case MsgCurrentState, MsgLocation:
			w.WriteState(u.Serial, stateFields(u.State), u.At)
		}
	}
}

func sensorFields(s Sensor) map[string]any {
	return map[string]any{
		"temperature_c": s.Temperature,
		"humidity_pct":  s.Humidity,
		"pm25":          s.PM25,
		"pm10":          s.PM10,
		"voc":           s.VOC,
		"nox":           s.NOx,
	}
}

// stateFields flattens the known parts of st. Unknown modes are omitted.
func stateFields(st State) map[string]any {
	fields := map[string]any{
		"position": st.Position,
	}

	modes := []struct {
		name string
		mode Mode
	}{
		{"power_on", st.Power},
		{"auto_on", st.Auto},
		{"rotating_on", st.Rotating},
		{"night_mode_on", st.NightMode},
	}
	for _, m := range modes {
		if m.mode.Known() {
			fields[m.name] = m.mode == ModeOn
		}
	}

	if st.FanSpeed.Known() {
		fields["fan_auto"] = st.FanSpeed.IsAuto()
		if lvl, ok := st.FanSpeed.Level(); ok {
			fields["fan_speed"] = lvl
		}
	}
	return fields
}
