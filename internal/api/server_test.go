package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/dysonlink/internal/device"
	"github.com/nerrad567/dysonlink/internal/discovery"
)

// =============================================================================
// Health and middleware
// =============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/health", "")
	assertStatus(t, rec, http.StatusOK)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["devices"] != float64(1) {
		t.Errorf("devices = %v, want 1", body["devices"])
	}
	if body["connected"] != float64(0) {
		t.Errorf("connected = %v, want 0", body["connected"])
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Registry: device.NewRegistry()}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without registry should fail")
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID should be generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rec2 := newRecorder(env, req)
	if got := rec2.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name      string
		origin    string
		wantAllow string
	}{
		{"allowed origin", "http://panel.local", "http://panel.local"},
		{"other origin", "http://evil.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
			req.Header.Set("Origin", tt.origin)
			rec := newRecorder(env, req)

			assertStatus(t, rec, http.StatusNoContent)
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestNotFoundRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/v1/nope", "")
	assertStatus(t, rec, http.StatusNotFound)
}

// =============================================================================
// Devices
// =============================================================================

func TestListDevices(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/devices", "")
	assertStatus(t, rec, http.StatusOK)

	body := decodeBody(t, rec)
	if body["count"] != float64(1) {
		t.Fatalf("count = %v, want 1", body["count"])
	}
	devices, _ := body["devices"].([]any)
	first, _ := devices[0].(map[string]any)
	if first["serial"] != testSerial {
		t.Errorf("serial = %v, want %s", first["serial"], testSerial)
	}
	if first["connected"] != false {
		t.Errorf("connected = %v, want false", first["connected"])
	}
	if _, ok := first["network"]; ok {
		t.Error("network should be omitted before resolution")
	}
}

func TestGetDevice_AfterConnect(t *testing.T) {
	env := newTestEnv(t, nil)
	env.connect(t)

	rec := env.do(t, http.MethodGet, "/api/v1/devices/"+testSerial, "")
	assertStatus(t, rec, http.StatusOK)

	body := decodeBody(t, rec)
	if body["connected"] != true {
		t.Errorf("connected = %v, want true", body["connected"])
	}
	state, _ := body["state"].(map[string]any)
	if state["power"] != "off" {
		t.Errorf("state.power = %v, want off", state["power"])
	}
	if state["fan_speed"] != float64(4) {
		t.Errorf("state.fan_speed = %v, want 4", state["fan_speed"])
	}
	network, _ := body["network"].(map[string]any)
	if network["address"] != "192.168.1.50" {
		t.Errorf("network.address = %v, want 192.168.1.50", network["address"])
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/devices/XX0-EU-NOPE", "")
	assertStatus(t, rec, http.StatusNotFound)
	if code := errorCode(t, rec); code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", code, ErrCodeNotFound)
	}
}

func TestRefreshDevice(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/devices/"+testSerial+"/refresh", "")
	assertStatus(t, rec, http.StatusConflict)

	env.connect(t)
	before := len(env.appliance.sentOf(device.MsgRequestCurrentState))

	rec = env.do(t, http.MethodPost, "/api/v1/devices/"+testSerial+"/refresh", "")
	assertStatus(t, rec, http.StatusAccepted)

	if got := len(env.appliance.sentOf(device.MsgRequestCurrentState)); got != before+1 {
		t.Errorf("REQUEST-CURRENT-STATE count = %d, want %d", got, before+1)
	}
}

func TestSetDeviceState(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   int
		code     string
		wantData []map[string]any
	}{
		{
			name:     "power on",
			body:     `{"power":"on"}`,
			status:   http.StatusAccepted,
			wantData: []map[string]any{{"fpwr": "ON"}},
		},
		{
			name:   "rotating and fan speed",
			body:   `{"rotating":"off","fan_speed":"7"}`,
			status: http.StatusAccepted,
			wantData: []map[string]any{
				{"oson": "OFF"},
				{"fnsp": "0007"},
			},
		},
		{
			name:     "auto fan speed",
			body:     `{"fan_speed":"AUTO"}`,
			status:   http.StatusAccepted,
			wantData: []map[string]any{{"fnsp": "AUTO"}},
		},
		{
			name:     "lowercase auto fan speed",
			body:     `{"fan_speed":"auto"}`,
			status:   http.StatusAccepted,
			wantData: []map[string]any{{"fnsp": "AUTO"}},
		},
		{
			name:   "mode other than on/off",
			body:   `{"power":"on","night_mode":"maybe"}`,
			status: http.StatusBadRequest,
			code:   ErrCodeValidation,
		},
		{
			name:   "fan speed out of range",
			body:   `{"fan_speed":"11"}`,
			status: http.StatusBadRequest,
			code:   ErrCodeValidation,
		},
		{
			name:   "no fields",
			body:   `{}`,
			status: http.StatusBadRequest,
			code:   ErrCodeBadRequest,
		},
		{
			name:   "invalid JSON",
			body:   `{power:`,
			status: http.StatusBadRequest,
			code:   ErrCodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.connect(t)

			rec := env.do(t, http.MethodPut, "/api/v1/devices/"+testSerial+"/state", tt.body)
			assertStatus(t, rec, tt.status)
			if tt.code != "" {
				if code := errorCode(t, rec); code != tt.code {
					t.Errorf("code = %q, want %q", code, tt.code)
				}
			}

			sets := env.appliance.sentOf(device.MsgStateSet)
			if len(sets) != len(tt.wantData) {
				t.Fatalf("STATE-SET count = %d, want %d (%v)", len(sets), len(tt.wantData), sets)
			}
			for i, want := range tt.wantData {
				for k, v := range want {
					if sets[i][k] != v {
						t.Errorf("STATE-SET[%d][%s] = %v, want %v", i, k, sets[i][k], v)
					}
				}
			}
		})
	}
}

func TestSetDeviceState_NotConnected(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPut, "/api/v1/devices/"+testSerial+"/state", `{"power":"on"}`)
	assertStatus(t, rec, http.StatusConflict)
	if code := errorCode(t, rec); code != ErrCodeConflict {
		t.Errorf("code = %q, want %q", code, ErrCodeConflict)
	}
}

func TestToggleDevice(t *testing.T) {
	env := newTestEnv(t, nil)
	env.connect(t)

	tests := []struct {
		control string
		field   string
		want    string
	}{
		{"power", "fpwr", "ON"},
		{"rotating", "oson", "OFF"},
	}

	for _, tt := range tests {
		t.Run(tt.control, func(t *testing.T) {
			before := len(env.appliance.sentOf(device.MsgStateSet))

			rec := env.do(t, http.MethodPost, "/api/v1/devices/"+testSerial+"/toggle/"+tt.control, "")
			assertStatus(t, rec, http.StatusAccepted)

			sets := env.appliance.sentOf(device.MsgStateSet)
			if len(sets) != before+1 {
				t.Fatalf("STATE-SET count = %d, want %d", len(sets), before+1)
			}
			if got := sets[before][tt.field]; got != tt.want {
				t.Errorf("%s = %v, want %s", tt.field, got, tt.want)
			}
		})
	}
}

func TestToggleDevice_UnknownControl(t *testing.T) {
	env := newTestEnv(t, nil)
	env.connect(t)

	rec := env.do(t, http.MethodPost, "/api/v1/devices/"+testSerial+"/toggle/turbo", "")
	assertStatus(t, rec, http.StatusBadRequest)
	if code := errorCode(t, rec); code != ErrCodeValidation {
		t.Errorf("code = %q, want %q", code, ErrCodeValidation)
	}
}

// =============================================================================
// Discovery and metrics
// =============================================================================

func TestListDiscovery(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(t, http.MethodGet, "/api/v1/discovery", "")
		assertStatus(t, rec, http.StatusNotFound)
	})

	t.Run("lists records", func(t *testing.T) {
		reg := discovery.NewRegistry()
		for _, name := range []string{"438_" + testSerial, "520_XY9-US-ZZZ9999Z"} {
			if err := reg.Put(discovery.ServiceRecord{Name: name, Host: "dyson.local.", Port: 1883}); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
		}
		env := newTestEnv(t, func(d *Deps) { d.Discovery = reg })

		rec := env.do(t, http.MethodGet, "/api/v1/discovery", "")
		assertStatus(t, rec, http.StatusOK)

		body := decodeBody(t, rec)
		if body["count"] != float64(2) {
			t.Fatalf("count = %v, want 2", body["count"])
		}
		managed := map[string]bool{}
		for _, raw := range body["services"].([]any) {
			svc, _ := raw.(map[string]any)
			serial, _ := svc["serial"].(string)
			managed[serial], _ = svc["managed"].(bool)
			if svc["last_seen_ago"] != "just now" {
				t.Errorf("last_seen_ago = %v, want just now", svc["last_seen_ago"])
			}
		}
		if !managed[testSerial] || managed["XY9-US-ZZZ9999Z"] {
			t.Errorf("managed = %v", managed)
		}
	})
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{time.Minute, "1 min ago"},
		{5 * time.Minute, "5 mins ago"},
		{time.Hour, "1 hour ago"},
		{3 * time.Hour, "3 hours ago"},
		{48 * time.Hour, "2 days ago"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.connect(t)

	rec := env.do(t, http.MethodGet, "/api/v1/metrics", "")
	assertStatus(t, rec, http.StatusOK)

	body := decodeBody(t, rec)
	devices, _ := body["devices"].(map[string]any)
	if devices["total"] != float64(1) || devices["connected"] != float64(1) {
		t.Errorf("devices = %v, want total=1 connected=1", devices)
	}
	if _, ok := body["database"]; ok {
		t.Error("database metrics should be omitted without a DB")
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
}

func TestPrometheusMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.connect(t)

	rec := env.do(t, http.MethodGet, "/api/v1/metrics/prometheus", "")
	assertStatus(t, rec, http.StatusOK)

	body := rec.Body.String()
	for _, want := range []string{
		`dysonlink_device_connected{serial="` + testSerial + `"} 1`,
		`dysonlink_device_fan_speed{serial="` + testSerial + `"} 4`,
		`dysonlink_websocket_clients 0`,
		`go_goroutines`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
	if strings.Contains(body, "dysonlink_device_sensor{") {
		t.Error("sensor readings exported before any sensor message")
	}
}

// =============================================================================
// WebSocket
// =============================================================================

// startServer starts the listener on an ephemeral port.
func startServer(t *testing.T, env *testEnv) string {
	t.Helper()

	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = env.srv.Close() })
	return env.srv.Addr().String()
}

func dialWS(t *testing.T, env *testEnv, addr string) *websocket.Conn {
	t.Helper()

	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })
	waitFor(t, "hub registration", func() bool { return env.srv.hub.ClientCount() == 1 })
	return ws
}

func TestWebSocket_RelaysDeviceUpdates(t *testing.T) {
	env := newTestEnv(t, nil)
	addr := startServer(t, env)
	ws := dialWS(t, env, addr)

	env.connect(t)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type      string        `json:"type"`
		EventType string        `json:"event_type"`
		Payload   device.Update `json:"payload"`
	}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}

	if msg.Type != WSTypeEvent || msg.EventType != EventDeviceUpdated {
		t.Errorf("message = %s/%s, want %s/%s", msg.Type, msg.EventType, WSTypeEvent, EventDeviceUpdated)
	}
	if msg.Payload.Serial != testSerial {
		t.Errorf("payload serial = %q, want %q", msg.Payload.Serial, testSerial)
	}
	if msg.Payload.Kind != device.MsgCurrentState {
		t.Errorf("payload kind = %q, want %q", msg.Payload.Kind, device.MsgCurrentState)
	}
	if msg.Payload.State.Rotating != device.ModeOn {
		t.Errorf("payload rotating = %q, want on", msg.Payload.State.Rotating)
	}
}

func TestWebSocket_PingAndUnsubscribe(t *testing.T) {
	env := newTestEnv(t, nil)
	addr := startServer(t, env)
	ws := dialWS(t, env, addr)

	read := func() WSMessage {
		t.Helper()
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		return msg
	}

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if msg := read(); msg.Type != WSTypePong || msg.ID != "p-1" {
		t.Errorf("reply = %s/%s, want pong/p-1", msg.Type, msg.ID)
	}

	unsub := WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "u-1",
		Payload: WSSubscribePayload{Channels: []string{EventDeviceUpdated}},
	}
	if err := ws.WriteJSON(unsub); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}
	if msg := read(); msg.Type != WSTypeResponse || msg.ID != "u-1" {
		t.Errorf("reply = %s/%s, want response/u-1", msg.Type, msg.ID)
	}

	if err := ws.WriteJSON(WSMessage{Type: "bogus", ID: "b-1"}); err != nil {
		t.Fatalf("write bogus: %v", err)
	}
	if msg := read(); msg.Type != WSTypeError {
		t.Errorf("reply type = %s, want error", msg.Type)
	}

	// Unsubscribed: the state report from Connect must not arrive.
	env.connect(t)
	ws.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err == nil {
		t.Errorf("received %s/%s after unsubscribing", msg.Type, msg.EventType)
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub(testAPIConfig().WebSocket, testLogger())

	client := &WSClient{hub: hub, send: make(chan []byte, 1), subscriptions: map[string]struct{}{}}
	hub.Register(client)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("ClientCount() = %d, want 1", got)
	}

	hub.Unregister(client)
	hub.Unregister(client) // second call must not double-close
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
}

func TestHub_BroadcastOnlyToSubscribed(t *testing.T) {
	hub := NewHub(testAPIConfig().WebSocket, testLogger())

	subscribed := &WSClient{hub: hub, send: make(chan []byte, 1), subscriptions: map[string]struct{}{EventDeviceUpdated: {}}}
	other := &WSClient{hub: hub, send: make(chan []byte, 1), subscriptions: map[string]struct{}{}}
	hub.Register(subscribed)
	hub.Register(other)

	hub.Broadcast(EventDeviceUpdated, map[string]string{"serial": testSerial})

	select {
	case <-subscribed.send:
	default:
		t.Error("subscribed client got no message")
	}
	select {
	case <-other.send:
		t.Error("unsubscribed client got a message")
	default:
	}
}

func TestHub_SlowClientDropsEvents(t *testing.T) {
	hub := NewHub(testAPIConfig().WebSocket, testLogger())
	slow := hub.newClient(nil, EventDeviceUpdated)
	hub.Register(slow)

	for range wsSendBufferSize + 3 {
		hub.Broadcast(EventDeviceUpdated, "x")
	}
	if got := hub.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}

	hub.Unregister(slow)
	if slow.enqueue([]byte("late")) {
		t.Error("enqueue() after Unregister should report false")
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}

	startServer(t, env)
	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
