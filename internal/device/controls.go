package device

import "fmt"

// STATE-SET field names.
const (
	fieldPower     = "fpwr"
	fieldAuto      = "auto"
	fieldNightMode = "nmod"
	fieldRotating  = "oson"
	fieldFanSpeed  = "fnsp"
)

// Control names a toggleable setting.
type Control string

// Toggleable controls.
const (
	ControlPower     Control = "power"
	ControlAuto      Control = "auto"
	ControlNightMode Control = "night_mode"
	ControlRotating  Control = "rotating"
)

// ParseControl validates a control name.
func ParseControl(s string) (Control, error) {
	switch c := Control(s); c {
	case ControlPower, ControlAuto, ControlNightMode, ControlRotating:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidControl, s)
	}
}

// setMode publishes one STATE-SET field with an upper-cased mode value.
func (d *Device) setMode(field string, m Mode) error {
	if !m.Known() {
		return fmt.Errorf("%w: %s requires a value", ErrInvalidMode, field)
	}
	return d.Publish(MsgStateSet, map[string]any{field: m.wire()})
}

// SetPower switches the device on or off.
func (d *Device) SetPower(m Mode) error { return d.setMode(fieldPower, m) }

// SetAuto switches automatic mode.
func (d *Device) SetAuto(m Mode) error { return d.setMode(fieldAuto, m) }

// SetNightMode switches night mode.
func (d *Device) SetNightMode(m Mode) error { return d.setMode(fieldNightMode, m) }

// SetRotating switches oscillation. The reported state arrives as "oscs".
func (d *Device) SetRotating(m Mode) error { return d.setMode(fieldRotating, m) }

// SetFanSpeed sets a fixed level or automatic fan speed.
func (d *Device) SetFanSpeed(f FanSpeed) error {
	if !f.Known() {
		return fmt.Errorf("%w: fan speed requires a value", ErrInvalidFanSpeed)
	}
	return d.Publish(MsgStateSet, map[string]any{fieldFanSpeed: f.wire()})
}

// Toggles read the cached snapshot, not the device: a value other than
// "on" (including unknown) turns the setting on, "on" turns it off. The
// cache is not updated until the device reports back.

// TogglePower inverts the cached power state and returns the value sent.
func (d *Device) TogglePower() (Mode, error) {
	return toggle(d.State().Power, d.SetPower)
}

// ToggleAuto inverts the cached auto state and returns the value sent.
func (d *Device) ToggleAuto() (Mode, error) {
	return toggle(d.State().Auto, d.SetAuto)
}

// ToggleNightMode inverts the cached night mode and returns the value sent.
func (d *Device) ToggleNightMode() (Mode, error) {
	return toggle(d.State().NightMode, d.SetNightMode)
}

// ToggleRotating inverts the cached oscillation state and returns the value sent.
func (d *Device) ToggleRotating() (Mode, error) {
	return toggle(d.State().Rotating, d.SetRotating)
}

// Toggle dispatches to the toggle for c.
func (d *Device) Toggle(c Control) (Mode, error) {
	switch c {
	case ControlPower:
		return d.TogglePower()
	case ControlAuto:
		return d.ToggleAuto()
	case ControlNightMode:
		return d.ToggleNightMode()
	case ControlRotating:
		return d.ToggleRotating()
	default:
		return ModeUnknown, fmt.Errorf("%w: %q", ErrInvalidControl, c)
	}
}

func toggle(current Mode, set func(Mode) error) (Mode, error) {
	next := ModeOn
	if current == ModeOn {
		next = ModeOff
	}
	if err := set(next); err != nil {
		return ModeUnknown, err
	}
	return next, nil
}
