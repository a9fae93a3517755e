package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/dysonlink/internal/cloud"
	"github.com/nerrad567/dysonlink/internal/credentials"
	"github.com/nerrad567/dysonlink/internal/device"
	"github.com/nerrad567/dysonlink/internal/discovery"
	"github.com/nerrad567/dysonlink/internal/infrastructure/config"
	"github.com/nerrad567/dysonlink/internal/infrastructure/logging"
)

const testSerial = "AB1-EU-KAA0001A"

// =============================================================================
// Fake appliance
// =============================================================================

// fakeAppliance answers REQUEST-CURRENT-STATE with a fixed product state.
type fakeAppliance struct {
	mu       sync.Mutex
	handlers []func([]byte)
	sent     []map[string]any
	closed   bool
}

func (a *fakeAppliance) Subscribe(_ string, handler func([]byte)) error {
	a.mu.Lock()
	a.handlers = append(a.handlers, handler)
	a.mu.Unlock()
	return nil
}

func (a *fakeAppliance) Publish(_ string, payload []byte) error {
	var env map[string]any
	if err := json.Unmarshal(payload, &env); err != nil {
		return err
	}

	a.mu.Lock()
	a.sent = append(a.sent, env)
	handlers := slices.Clone(a.handlers)
	a.mu.Unlock()

	if env["msg"] == string(device.MsgRequestCurrentState) {
		for _, h := range handlers {
			h([]byte(currentState))
		}
	}
	return nil
}

func (a *fakeAppliance) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.closed
}

func (a *fakeAppliance) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}

// sentOf returns the data of every published envelope of kind.
func (a *fakeAppliance) sentOf(kind device.MessageKind) []map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []map[string]any
	for _, env := range a.sent {
		if env["msg"] == string(kind) {
			data, _ := env["data"].(map[string]any)
			out = append(out, data)
		}
	}
	return out
}

const currentState = `{"msg":"CURRENT-STATE","time":"2026-10-14T09:00:00Z","product-state":{` +
	`"fpwr":"OFF","auto":"OFF","oscs":"ON","fdir":"ON","fnst":"FAN",` +
	`"nmod":"OFF","osal":"0045","osau":"0315","fnsp":"0004"}}`

type fakeDialer struct{ appliance *fakeAppliance }

func (d fakeDialer) Dial(_ context.Context, opts device.DialOptions) (device.Transport, error) {
	if opts.Host == "" {
		return nil, errors.New("no broker address")
	}
	return d.appliance, nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, serial string) (discovery.Network, error) {
	return discovery.Network{
		ServiceName: "438_" + serial,
		TopicPrefix: "438",
		Host:        "dyson.local.",
		Port:        1883,
		Address:     "192.168.1.50",
	}, nil
}

// =============================================================================
// Server fixtures
// =============================================================================

type testEnv struct {
	srv       *Server
	registry  *device.Registry
	device    *device.Device
	appliance *fakeAppliance
}

func testLogger() *logging.Logger {
	return logging.Discard()
}

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Host: "127.0.0.1",
		Port: 0,
		Timeouts: config.APITimeoutConfig{
			Read:  5,
			Write: 5,
			Idle:  5,
		},
		WebSocket: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://panel.local"}},
	}
}

// newTestEnv builds a server managing one unconnected device.
// mutate may adjust the dependencies before New is called.
func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()

	blob, err := credentials.Encrypt(credentials.Credentials{Serial: testSerial, PasswordHash: "c2VjcmV0"})
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	entry := cloud.ManifestEntry{
		Name:             "Bedroom",
		Serial:           testSerial,
		ProductType:      "438",
		LocalCredentials: blob,
	}

	appliance := &fakeAppliance{}
	registry := device.NewRegistry()
	if _, err := registry.Load([]cloud.ManifestEntry{entry}, fakeResolver{}, fakeDialer{appliance: appliance}, nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	d, err := registry.GetDevice(testSerial)
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	t.Cleanup(func() { _ = registry.DisconnectAll() })

	deps := Deps{
		Config:   testAPIConfig(),
		Logger:   testLogger(),
		Registry: registry,
		Version:  "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{srv: srv, registry: registry, device: d, appliance: appliance}
}

// connect opens the device session and waits for the first state report.
func (e *testEnv) connect(t *testing.T) {
	t.Helper()

	if err := e.device.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, "initial state", func() bool { return e.device.State().Power.Known() })
}

// do sends a request through the router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return newRecorder(e, req)
}

// newRecorder serves a prepared request through the router.
func newRecorder(e *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body %q: %v", rec.Body.String(), err)
	}
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	code, _ := decodeBody(t, rec)["code"].(string)
	return code
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, want, rec.Body.String())
	}
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
