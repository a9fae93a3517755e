// Package device manages Dyson-class appliances over their local MQTT broker.
//
// A Device is built from one cloud manifest entry. Its local credentials
// are decrypted once at construction; its network location is resolved
// lazily through a NetworkResolver and memoised.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                           Device                             │
//	│                                                              │
//	│  Connect ──▶ Dialer ──▶ Transport ──▶ inbox ──▶ receive loop │
//	│                             ▲                        │       │
//	│                             │                        ▼       │
//	│  Set*/Toggle* ──▶ Publish ──┘                     router     │
//	│                                                      │       │
//	│                                                      ▼       │
//	│                                    Store (state + sensor)    │
//	└──────────────────────────────────────────────────────┼───────┘
//	                                                       ▼
//	                                        Registry listeners
//	                                   (history, telemetry, websocket)
//
// # Message Handling
//
// Inbound messages are applied in arrival order by a single goroutine per
// session:
//
//   - CURRENT-STATE replaces every operational field except Position
//   - LOCATION updates Position only
//   - ENVIRONMENTAL-CURRENT-SENSOR-DATA replaces the sensor readings
//   - STATE-CHANGE publishes exactly one REQUEST-CURRENT-STATE
//   - anything else is ignored
//
// A message is fully parsed before the store is touched. Malformed
// messages are logged and dropped; they never close the session.
//
// # Usage
//
//	registry := device.NewRegistry()
//	registry.SetLogger(log)
//	registry.Subscribe(device.HistoryRecorder(historyRepo, log))
//
//	if _, err := registry.Load(entries, resolver, device.MQTTDialer{}, nil); err != nil {
//	    log.Warn("some devices skipped", "error", err)
//	}
//	_ = registry.ConnectAll(ctx)
//
//	d, _ := registry.GetDevice("AB1-EU-KAA0001A")
//	mode, err := d.TogglePower()
//
// # Thread Safety
//
// Device and Registry are safe for concurrent use. Toggles read the cached
// snapshot; the cache only changes when the appliance reports back.
package device
