package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/nerrad567/dysonlink/internal/device"
	"github.com/nerrad567/dysonlink/internal/discovery"
)

// deviceView is the JSON shape of one managed device.
type deviceView struct {
	ID          string             `json:"id"`
	Serial      string             `json:"serial"`
	Name        string             `json:"name"`
	ProductType string             `json:"product_type"`
	Connected   bool               `json:"connected"`
	Network     *discovery.Network `json:"network,omitempty"`
	State       device.State       `json:"state"`
	Sensor      device.Sensor      `json:"sensor"`
}

func newDeviceView(d *device.Device) deviceView {
	st, sensor := d.Snapshot()
	v := deviceView{
		ID:          d.ID(),
		Serial:      d.Serial(),
		Name:        d.Name(),
		ProductType: d.ManifestEntry().ProductType,
		Connected:   d.IsConnected(),
		State:       st,
		Sensor:      sensor,
	}
	if n, ok := d.CachedNetwork(); ok {
		v.Network = &n
	}
	return v
}

// deviceFromRequest looks up the {serial} path parameter, writing a 404
// when it is not managed.
func (s *Server) deviceFromRequest(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	d, err := s.registry.GetDevice(chi.URLParam(r, "serial"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return d, true
}

// handleListDevices returns every managed device in manifest order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	views := lo.Map(s.registry.ListDevices(), func(d *device.Device, _ int) deviceView {
		return newDeviceView(d)
	})
	writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
}

// handleGetDevice returns a single device by serial.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newDeviceView(d))
}

// handleRefreshDevice asks the device to publish its current state.
func (s *Server) handleRefreshDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}
	if err := d.Refresh(); err != nil {
		s.logger.Warn("refresh failed", "serial", d.Serial(), "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"serial": d.Serial(), "status": "requested"})
}

// setStateRequest is the body of PUT /devices/{serial}/state.
// Absent fields are left alone.
type setStateRequest struct {
	Power     *string `json:"power"`
	Auto      *string `json:"auto"`
	NightMode *string `json:"night_mode"`
	Rotating  *string `json:"rotating"`
	FanSpeed  *string `json:"fan_speed"`
}

// stateCommand is one validated setter call.
type stateCommand struct {
	field string
	apply func() error
}

// commands validates every field before anything is sent, so a bad value
// never leaves the device half-updated.
func (req setStateRequest) commands(d *device.Device) ([]stateCommand, error) {
	var cmds []stateCommand

	modes := []struct {
		field string
		value *string
		set   func(device.Mode) error
	}{
		{"power", req.Power, d.SetPower},
		{"auto", req.Auto, d.SetAuto},
		{"night_mode", req.NightMode, d.SetNightMode},
		{"rotating", req.Rotating, d.SetRotating},
	}
	for _, m := range modes {
		if m.value == nil {
			continue
		}
		mode, err := device.ParseMode(*m.value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.field, err)
		}
		if mode != device.ModeOn && mode != device.ModeOff {
			return nil, fmt.Errorf("%s: %w: %q is not on or off", m.field, device.ErrInvalidMode, *m.value)
		}
		set := m.set
		cmds = append(cmds, stateCommand{field: m.field, apply: func() error { return set(mode) }})
	}

	if req.FanSpeed != nil {
		speed, err := device.ParseFanSpeedSetting(*req.FanSpeed)
		if err != nil {
			return nil, fmt.Errorf("fan_speed: %w", err)
		}
		cmds = append(cmds, stateCommand{field: "fan_speed", apply: func() error { return d.SetFanSpeed(speed) }})
	}

	return cmds, nil
}

// handleSetDeviceState sends one STATE-SET per field in the body.
//
// The response is 202: the cached state changes only when the device
// reports back.
func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	d, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}

	var req setStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("invalid JSON body"))
		return
	}

	cmds, err := req.commands(d)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(cmds) == 0 {
		writeError(w, badRequest("no state fields given"))
		return
	}

	log := s.logger.ForDevice(d.Serial())
	sent := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		if err := cmd.apply(); err != nil {
			log.Warn("state command failed", "field", cmd.field, "error", err)
			writeError(w, err)
			return
		}
		sent = append(sent, cmd.field)
	}

	log.Info("state command sent", "fields", sent)
	writeJSON(w, http.StatusAccepted, map[string]any{"serial": d.Serial(), "sent": sent})
}

// handleToggleDevice inverts one setting from the cached state.
func (s *Server) handleToggleDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}

	control, err := device.ParseControl(chi.URLParam(r, "control"))
	if err != nil {
		writeError(w, err)
		return
	}

	mode, err := d.Toggle(control)
	if err != nil {
		if !errors.Is(err, device.ErrNotConnected) {
			s.logger.ForDevice(d.Serial()).Warn("toggle failed", "control", control, "error", err)
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"serial":  d.Serial(),
		"control": control,
		"sent":    mode,
	})
}
