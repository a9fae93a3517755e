package device

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/dysonlink/internal/cloud"
	"github.com/nerrad567/dysonlink/internal/credentials"
	"github.com/nerrad567/dysonlink/internal/discovery"
)

const (
	testSerial   = "AB1-EU-KAA0001A"
	testPassword = "c2VjcmV0LWhhc2g="
	testPrefix   = "438"
)

var testNetwork = discovery.Network{
	ServiceName: testPrefix + "_" + testSerial,
	TopicPrefix: testPrefix,
	Host:        "dyson-ab1.local.",
	Port:        1883,
	Address:     "192.168.1.50",
}

// testEntry returns a manifest entry whose credentials decrypt to serial.
func testEntry(t *testing.T, serial string) cloud.ManifestEntry {
	t.Helper()

	blob, err := credentials.Encrypt(credentials.Credentials{Serial: serial, PasswordHash: testPassword})
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	return cloud.ManifestEntry{
		Name:             "Bedroom " + serial,
		Serial:           serial,
		ProductType:      "438",
		Version:          "21.03.08",
		LocalCredentials: blob,
	}
}

// =============================================================================
// Fake resolver
// =============================================================================

type fakeResolver struct {
	mu      sync.Mutex
	network discovery.Network
	err     error
	calls   int
}

func (r *fakeResolver) Resolve(_ context.Context, _ string) (discovery.Network, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.network, r.err
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// =============================================================================
// Fake appliance transport
// =============================================================================

type sentMessage struct {
	Topic string
	Env   map[string]any
}

func (m sentMessage) kind() MessageKind {
	s, _ := m.Env["msg"].(string)
	return MessageKind(s)
}

func (m sentMessage) data() map[string]any {
	d, _ := m.Env["data"].(map[string]any)
	return d
}

// fakeAppliance is a Transport that behaves like a device broker: it answers
// REQUEST-CURRENT-STATE with its product state and applies STATE-SET.
type fakeAppliance struct {
	mu           sync.Mutex
	handlers     map[string]func([]byte)
	sent         []sentMessage
	product      map[string]string
	connected    bool
	closed       int
	silent       bool
	publishErr   error
	subscribeErr error
}

func newFakeAppliance() *fakeAppliance {
	return &fakeAppliance{
		handlers:  make(map[string]func([]byte)),
		connected: true,
		product: map[string]string{
			"fpwr": "OFF",
			"auto": "OFF",
			"oscs": "OFF",
			"fdir": "ON",
			"fnst": "OFF",
			"nmod": "OFF",
			"osal": "0045",
			"osau": "0315",
			"fnsp": "0001",
		},
	}
}

func (a *fakeAppliance) Subscribe(topic string, handler func([]byte)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.subscribeErr != nil {
		return a.subscribeErr
	}
	a.handlers[topic] = handler
	return nil
}

func (a *fakeAppliance) Publish(topic string, payload []byte) error {
	var env map[string]any
	if err := json.Unmarshal(payload, &env); err != nil {
		return err
	}

	a.mu.Lock()
	if a.publishErr != nil {
		a.mu.Unlock()
		return a.publishErr
	}
	a.sent = append(a.sent, sentMessage{Topic: topic, Env: env})

	msg := sentMessage{Env: env}
	if msg.kind() == MsgStateSet {
		for k, v := range msg.data() {
			if s, ok := v.(string); ok {
				a.product[translateSetField(k)] = s
			}
		}
	}
	reply := !a.silent && (msg.kind() == MsgRequestCurrentState || msg.kind() == MsgStateSet)
	a.mu.Unlock()

	if reply {
		a.emitCurrentState()
	}
	return nil
}

// translateSetField maps the STATE-SET rotation field to the reported one.
func translateSetField(k string) string {
	if k == fieldRotating {
		return "oscs"
	}
	return k
}

func (a *fakeAppliance) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

func (a *fakeAppliance) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	a.closed++
	return nil
}

// deliver pushes raw payload to every subscribed handler.
func (a *fakeAppliance) deliver(payload string) {
	a.mu.Lock()
	handlers := make([]func([]byte), 0, len(a.handlers))
	for _, h := range a.handlers {
		handlers = append(handlers, h)
	}
	a.mu.Unlock()

	for _, h := range handlers {
		h([]byte(payload))
	}
}

func (a *fakeAppliance) emitCurrentState() {
	a.mu.Lock()
	ps := maps.Clone(a.product)
	a.mu.Unlock()

	payload, _ := json.Marshal(map[string]any{
		"msg":           string(MsgCurrentState),
		"time":          "2026-10-14T09:00:00Z",
		"product-state": ps,
	})
	a.deliver(string(payload))
}

func (a *fakeAppliance) messages() []sentMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentMessage(nil), a.sent...)
}

func (a *fakeAppliance) messagesOf(kind MessageKind) []sentMessage {
	var out []sentMessage
	for _, m := range a.messages() {
		if m.kind() == kind {
			out = append(out, m)
		}
	}
	return out
}

func (a *fakeAppliance) subscribedTopics() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var topics []string
	for t := range a.handlers {
		topics = append(topics, t)
	}
	return topics
}

// =============================================================================
// Fake dialer
// =============================================================================

type fakeDialer struct {
	mu        sync.Mutex
	appliance *fakeAppliance
	err       error
	dials     []DialOptions
}

func (d *fakeDialer) Dial(_ context.Context, opts DialOptions) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, opts)
	if d.err != nil {
		return nil, d.err
	}
	if opts.Host == "" {
		return nil, errors.New("no broker address")
	}
	return d.appliance, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

// =============================================================================
// Helpers
// =============================================================================

// newTestDevice builds a device wired to a fake appliance.
func newTestDevice(t *testing.T) (*Device, *fakeAppliance, *fakeDialer, *fakeResolver) {
	t.Helper()

	appliance := newFakeAppliance()
	dialer := &fakeDialer{appliance: appliance}
	resolver := &fakeResolver{network: testNetwork}

	d, err := New(testEntry(t, testSerial), resolver, dialer)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	d.now = func() time.Time { return time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { _ = d.Disconnect() })
	return d, appliance, dialer, resolver
}

// connectTestDevice connects and waits for the first CURRENT-STATE.
func connectTestDevice(t *testing.T) (*Device, *fakeAppliance) {
	t.Helper()

	d, appliance, _, _ := newTestDevice(t)
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, "initial state", func() bool { return d.State().Power.Known() })
	return d, appliance
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

// currentStatePayload builds a CURRENT-STATE envelope from product fields.
func currentStatePayload(product map[string]string) string {
	var b strings.Builder
	b.WriteString(`{"msg":"CURRENT-STATE","time":"2026-10-14T09:00:00Z","product-state":`)
	raw, _ := json.Marshal(product)
	b.Write(raw)
	b.WriteString("}")
	return b.String()
}
