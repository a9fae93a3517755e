package device

import (
	"encoding/json"
	"errors"
	"testing"
)

// =============================================================================
// Value Parsing Tests
// =============================================================================

func TestParseFanSpeed(t *testing.T) {
	tests := []struct {
		in       string
		wantAuto bool
		wantLvl  int
		wantErr  bool
	}{
		{in: "AUTO", wantAuto: true},
		{in: "auto", wantErr: true},
		{in: "Auto", wantErr: true},
		{in: "0004", wantLvl: 4},
		{in: "10", wantLvl: 10},
		{in: "0000", wantLvl: 0},
		{in: "0011", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "fast", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFanSpeed(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFanSpeed) {
					t.Fatalf("ParseFanSpeed(%q) error = %v, want ErrInvalidFanSpeed", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFanSpeed(%q) error = %v", tt.in, err)
			}
			if got.IsAuto() != tt.wantAuto {
				t.Errorf("IsAuto() = %v, want %v", got.IsAuto(), tt.wantAuto)
			}
			if !tt.wantAuto {
				lvl, ok := got.Level()
				if !ok || lvl != tt.wantLvl {
					t.Errorf("Level() = (%d, %v), want (%d, true)", lvl, ok, tt.wantLvl)
				}
			}
		})
	}
}

func TestParseFanSpeedSetting(t *testing.T) {
	tests := []struct {
		in       string
		wantAuto bool
		wantLvl  int
		wantErr  bool
	}{
		{in: "AUTO", wantAuto: true},
		{in: "auto", wantAuto: true},
		{in: "Auto", wantAuto: true},
		{in: "4", wantLvl: 4},
		{in: "0010", wantLvl: 10},
		{in: "11", wantErr: true},
		{in: "automatic", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFanSpeedSetting(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFanSpeed) {
					t.Fatalf("ParseFanSpeedSetting(%q) error = %v, want ErrInvalidFanSpeed", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFanSpeedSetting(%q) error = %v", tt.in, err)
			}
			if got.IsAuto() != tt.wantAuto {
				t.Errorf("IsAuto() = %v, want %v", got.IsAuto(), tt.wantAuto)
			}
			if lvl, _ := got.Level(); !tt.wantAuto && lvl != tt.wantLvl {
				t.Errorf("Level() = %d, want %d", lvl, tt.wantLvl)
			}
		})
	}
}

func TestCalculateTemperature(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "2931", want: 20},
		{in: "2500", want: -23},
		{in: "2732", want: 0},
		{in: "2958", want: 23},
		{in: "OFF", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CalculateTemperature(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CalculateTemperature(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("CalculateTemperature(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "ON", want: ModeOn},
		{in: "off", want: ModeOff},
		{in: "FAN", want: Mode("fan")},
		{in: "", wantErr: true},
		{in: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMode) {
					t.Fatalf("ParseMode(%q) error = %v, want ErrInvalidMode", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseMode(%q) = (%q, %v), want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestFanSpeed_Wire(t *testing.T) {
	four, _ := FanSpeedLevel(4)
	ten, _ := FanSpeedLevel(10)

	tests := []struct {
		name string
		in   FanSpeed
		want string
	}{
		{"auto", FanSpeedAuto(), "AUTO"},
		{"four", four, "0004"},
		{"ten", ten, "0010"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.wire(); got != tt.want {
				t.Errorf("wire() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFanSpeed_JSON(t *testing.T) {
	seven, _ := FanSpeedLevel(7)

	tests := []struct {
		name string
		in   FanSpeed
		want string
	}{
		{"unknown", FanSpeed{}, "null"},
		{"auto", FanSpeedAuto(), `"auto"`},
		{"level", seven, "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.in)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(raw) != tt.want {
				t.Errorf("Marshal() = %s, want %s", raw, tt.want)
			}

			var back FanSpeed
			if err := json.Unmarshal(raw, &back); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", raw, err)
			}
			if back != tt.in {
				t.Errorf("Unmarshal(%s) = %+v, want %+v", raw, back, tt.in)
			}
		})
	}

	var bad FanSpeed
	if err := json.Unmarshal([]byte("42"), &bad); !errors.Is(err, ErrInvalidFanSpeed) {
		t.Errorf("Unmarshal(42) error = %v, want ErrInvalidFanSpeed", err)
	}
}

func TestParseControl(t *testing.T) {
	for _, name := range []string{"power", "auto", "night_mode", "rotating"} {
		if _, err := ParseControl(name); err != nil {
			t.Errorf("ParseControl(%q) error = %v", name, err)
		}
	}
	if _, err := ParseControl("heat"); !errors.Is(err, ErrInvalidControl) {
		t.Errorf("ParseControl(heat) error = %v, want ErrInvalidControl", err)
	}
}
