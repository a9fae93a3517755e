package device

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// fanSpeedAutoToken is the wire token for automatic fan speed.
const fanSpeedAutoToken = "AUTO"

// kelvinOffset converts kelvin to degrees Celsius.
const kelvinOffset = 273.15

// Payload keys of the nested objects the dispatch rules read.
const (
	keyProductState = "product-state"
	keySensorData   = "data"
	keyPosition     = "apos"
)

// ParseFanSpeed parses a wire fan speed token. Exactly "AUTO" is the
// automatic sentinel; anything else must be a decimal level 0-10 (zero
// padding allowed).
func ParseFanSpeed(s string) (FanSpeed, error) {
	if s == fanSpeedAutoToken {
		return FanSpeedAuto(), nil
	}
	return parseFanLevel(s)
}

// ParseFanSpeedSetting parses a user-supplied fan speed. It is ParseFanSpeed
// with "auto" matched in any case.
func ParseFanSpeedSetting(s string) (FanSpeed, error) {
	if strings.EqualFold(s, fanSpeedAutoToken) {
		return FanSpeedAuto(), nil
	}
	return parseFanLevel(s)
}

func parseFanLevel(s string) (FanSpeed, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return FanSpeed{}, fmt.Errorf("%w: %q", ErrInvalidFanSpeed, s)
	}
	return FanSpeedLevel(n)
}

// CalculateTemperature converts a tenths-of-kelvin token to whole degrees
// Celsius, rounding half away from zero.
//
// Example: "2931" -> 20, "2500" -> -23
func CalculateTemperature(s string) (int, error) {
	raw, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("temperature %q: %w", s, err)
	}
	return int(math.Round(float64(raw)/10 - kelvinOffset)), nil
}

// fields is a decoded JSON object whose values are read lazily.
type fields map[string]json.RawMessage

// object decodes the nested object at key.
func (f fields) object(key string) (fields, error) {
	raw, ok := f[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformedMessage, key)
	}
	var out fields
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return nil, fmt.Errorf("%w: %q is not an object", ErrMalformedMessage, key)
	}
	return out, nil
}

// str returns the string value at key.
func (f fields) str(key string) (string, error) {
	raw, ok := f[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrMalformedMessage, key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %q is not a string", ErrMalformedMessage, key)
	}
	return s, nil
}

// mode parses the value at key as a Mode.
func (f fields) mode(key string) (Mode, error) {
	s, err := f.str(key)
	if err != nil {
		return ModeUnknown, err
	}
	m, err := ParseMode(s)
	if err != nil {
		return ModeUnknown, fmt.Errorf("%w: %q: %w", ErrMalformedMessage, key, err)
	}
	return m, nil
}

// integer parses the value at key as a decimal integer.
func (f fields) integer(key string) (int, error) {
	s, err := f.str(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q=%q is not an integer", ErrMalformedMessage, key, s)
	}
	return n, nil
}

// parseCurrentState builds a State from a CURRENT-STATE payload.
// Position and UpdatedAt are left zero for the store to fill.
func parseCurrentState(payload fields) (State, error) {
	ps, err := payload.object(keyProductState)
	if err != nil {
		return State{}, err
	}

	var st State
	modes := []struct {
		key string
		dst *Mode
	}{
		{"fpwr", &st.Power},
		{"auto", &st.Auto},
		{"oscs", &st.Rotating},
		{"fdir", &st.AirFlow},
		{"fnst", &st.Fan},
		{"nmod", &st.NightMode},
	}
	for _, m := range modes {
		if *m.dst, err = ps.mode(m.key); err != nil {
			return State{}, err
		}
	}

	if st.RotationFrom, err = ps.integer("osal"); err != nil {
		return State{}, err
	}
	if st.RotationTo, err = ps.integer("osau"); err != nil {
		return State{}, err
	}

	speed, err := ps.str("fnsp")
	if err != nil {
		return State{}, err
	}
	if st.FanSpeed, err = ParseFanSpeed(speed); err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	return st, nil
}

// parseLocation reads the position from a LOCATION payload.
func parseLocation(payload fields) (int, error) {
	return payload.integer(keyPosition)
}

// sensorReading is one ENVIRONMENTAL-CURRENT-SENSOR-DATA message. A nil
// field was absent or carried a non-numeric placeholder such as "INIT".
type sensorReading struct {
	Temperature, Humidity, PM25, PM10, VOC, NOx *int

	// skipped lists the keys whose token was not numeric.
	skipped []string
}

func (r sensorReading) empty() bool {
	return r.Temperature == nil && r.Humidity == nil && r.PM25 == nil &&
		r.PM10 == nil && r.VOC == nil && r.NOx == nil
}

// parseSensor reads an ENVIRONMENTAL-CURRENT-SENSOR-DATA payload. Only a
// missing data object or a missing tact is an error; other fields are
// read one by one and a bad token leaves just that field out.
func parseSensor(payload fields) (sensorReading, error) {
	data, err := payload.object(keySensorData)
	if err != nil {
		return sensorReading{}, err
	}
	if _, ok := data["tact"]; !ok {
		return sensorReading{}, fmt.Errorf("%w: missing %q", ErrMalformedMessage, "tact")
	}

	var r sensorReading
	if tact, err := data.str("tact"); err == nil {
		if c, err := CalculateTemperature(tact); err == nil {
			r.Temperature = &c
		} else {
			r.skipped = append(r.skipped, "tact")
		}
	} else {
		r.skipped = append(r.skipped, "tact")
	}

	ints := []struct {
		key string
		dst **int
	}{
		{"hact", &r.Humidity},
		{"p25r", &r.PM25},
		{"p10r", &r.PM10},
		{"va10", &r.VOC},
		{"noxl", &r.NOx},
	}
	for _, i := range ints {
		if _, ok := data[i.key]; !ok {
			continue
		}
		n, err := data.integer(i.key)
		if err != nil {
			r.skipped = append(r.skipped, i.key)
			continue
		}
		*i.dst = &n
	}

	return r, nil
}
