package device

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MessageKind is the value of the "msg" field of a wire envelope.
type MessageKind string

// Inbound message kinds.
const (
	MsgCurrentState MessageKind = "CURRENT-STATE"
	MsgLocation     MessageKind = "LOCATION"
	MsgSensorData   MessageKind = "ENVIRONMENTAL-CURRENT-SENSOR-DATA"
	MsgStateChange  MessageKind = "STATE-CHANGE"
)

// Outbound message kinds.
const (
	MsgRequestCurrentState MessageKind = "REQUEST-CURRENT-STATE"
	MsgStateSet            MessageKind = "STATE-SET"
)

// Mode is a lower-cased enumerated state value such as "on" or "off".
//
// The zero value means the device has not reported the field yet.
// Values other than on/off are kept as reported (e.g. "fan", "idle").
type Mode string

// Well-known modes.
const (
	ModeUnknown Mode = ""
	ModeOn      Mode = "on"
	ModeOff     Mode = "off"
)

// ParseMode lower-cases a wire token into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if m == ModeUnknown {
		return ModeUnknown, fmt.Errorf("%w: empty value", ErrInvalidMode)
	}
	return m, nil
}

// Known reports whether the mode has been populated.
func (m Mode) Known() bool { return m != ModeUnknown }

// wire returns the upper-cased token sent in STATE-SET.
func (m Mode) wire() string { return strings.ToUpper(string(m)) }

type fanSpeedKind uint8

const (
	fanSpeedUnknown fanSpeedKind = iota
	fanSpeedAuto
	fanSpeedLevel
)

// Fan speed bounds.
const (
	MinFanSpeed = 0
	MaxFanSpeed = 10
)

// FanSpeed is either unknown, the automatic sentinel, or a level 0-10.
// It can never be auto and a level at once.
type FanSpeed struct {
	kind  fanSpeedKind
	level int
}

// FanSpeedAuto returns the automatic fan speed.
func FanSpeedAuto() FanSpeed {
	return FanSpeed{kind: fanSpeedAuto}
}

// FanSpeedLevel returns a fixed fan speed.
func FanSpeedLevel(level int) (FanSpeed, error) {
	if level < MinFanSpeed || level > MaxFanSpeed {
		return FanSpeed{}, fmt.Errorf("%w: %d not in %d-%d", ErrInvalidFanSpeed, level, MinFanSpeed, MaxFanSpeed)
	}
	return FanSpeed{kind: fanSpeedLevel, level: level}, nil
}

// Known reports whether the speed has been populated.
func (f FanSpeed) Known() bool { return f.kind != fanSpeedUnknown }

// IsAuto reports whether the speed is the automatic sentinel.
func (f FanSpeed) IsAuto() bool { return f.kind == fanSpeedAuto }

// Level returns the fixed level, or false when the speed is auto or unknown.
func (f FanSpeed) Level() (int, bool) {
	return f.level, f.kind == fanSpeedLevel
}

// String returns "auto", the decimal level, or "" when unknown.
func (f FanSpeed) String() string {
	switch f.kind {
	case fanSpeedAuto:
		return "auto"
	case fanSpeedLevel:
		return strconv.Itoa(f.level)
	default:
		return ""
	}
}

// wire returns the STATE-SET token: "AUTO" or a four-digit level.
func (f FanSpeed) wire() string {
	if f.kind == fanSpeedAuto {
		return fanSpeedAutoToken
	}
	return fmt.Sprintf("%04d", f.level)
}

// MarshalJSON encodes auto as "auto", a level as a number and unknown as null.
func (f FanSpeed) MarshalJSON() ([]byte, error) {
	switch f.kind {
	case fanSpeedAuto:
		return []byte(`"auto"`), nil
	case fanSpeedLevel:
		return []byte(strconv.Itoa(f.level)), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts the forms MarshalJSON produces plus decimal strings.
func (f *FanSpeed) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = FanSpeed{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidFanSpeed, data)
		}
		s = strconv.Itoa(n)
	}

	parsed, err := ParseFanSpeedSetting(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// State is the operational snapshot of a device.
type State struct {
	Power        Mode     `json:"power"`
	Auto         Mode     `json:"auto"`
	Rotating     Mode     `json:"rotating"`
	AirFlow      Mode     `json:"air_flow"`
	RotationFrom int      `json:"rotation_from"`
	RotationTo   int      `json:"rotation_to"`
	FanSpeed     FanSpeed `json:"fan_speed"`
	Fan          Mode     `json:"fan"`
	NightMode    Mode     `json:"night_mode"`

	// Position is the last reported physical position. It is only written by
	// LOCATION messages; CURRENT-STATE leaves it alone.
	Position int `json:"position"`

	// UpdatedAt is when the last CURRENT-STATE was applied (zero until then).
	UpdatedAt time.Time `json:"updated_at"`
}

// Sensor is the environmental snapshot of a device.
type Sensor struct {
	// Temperature in whole degrees Celsius.
	Temperature int `json:"temperature"`
	// Humidity in percent.
	Humidity int `json:"humidity"`
	PM25     int `json:"pm25"`
	PM10     int `json:"pm10"`
	VOC      int `json:"voc"`
	NOx      int `json:"nox"`

	// UpdatedAt is zero until the first sensor message is applied.
	UpdatedAt time.Time `json:"updated_at"`
}

// Known reports whether any sensor data has been received.
func (s Sensor) Known() bool { return !s.UpdatedAt.IsZero() }

// Update is delivered to observers after a message changed the snapshot.
type Update struct {
	DeviceID string      `json:"device_id"`
	Serial   string      `json:"serial"`
	Kind     MessageKind `json:"kind"`
	State    State       `json:"state"`
	Sensor   Sensor      `json:"sensor"`
	At       time.Time   `json:"at"`
}
