// Package api implements the HTTP REST API and WebSocket stream for dysonlink.
//
// This package provides:
//   - REST endpoints to list devices, read cached state and history, and send commands
//   - A WebSocket hub relaying every device update as a "device.updated" event
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server sits in front of a device.Registry. Commands are forwarded to
// the device sessions as STATE-SET messages and answered with 202 Accepted:
// the cached state only changes once the appliance reports back, and that
// report reaches WebSocket clients through the registry subscription.
//
//	HTTP client ──PUT /state──► api ──► device.Device ──MQTT──► appliance
//	WS client   ◄──event────── hub ◄── registry.Subscribe ◄───────┘
//
// # Graceful Degradation
//
// History, discovery and database metrics are optional. Endpoints backed by
// a missing dependency return 404; commands to a disconnected device return
// 409.
package api
