package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics is the body of GET /api/v1/metrics.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	Devices       DeviceMetrics    `json:"devices"`
	Discovery     *DiscoveryStats  `json:"discovery,omitempty"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics is a subset of runtime.MemStats.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

type WSMetrics struct {
	ConnectedClients int   `json:"connected_clients"`
	DroppedEvents    int64 `json:"dropped_events"`
}

type DeviceMetrics struct {
	Total     int `json:"total"`
	Connected int `json:"connected"`
	// SensorReporting counts devices that have sent at least one sensor reading.
	SensorReporting int `json:"sensor_reporting"`
}

type DiscoveryStats struct {
	Services int `json:"services"`
}

// DatabaseMetrics mirrors sql.DBStats.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

func readRuntimeMetrics() RuntimeMetrics {
	const mb = 1 << 20

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return RuntimeMetrics{
		Goroutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(ms.Alloc) / mb,
		MemoryTotalMB: float64(ms.TotalAlloc) / mb,
		NumGC:         ms.NumGC,
	}
}

func (s *Server) deviceMetrics() DeviceMetrics {
	stats := s.registry.GetStats()
	m := DeviceMetrics{Total: stats.TotalDevices, Connected: stats.ConnectedDevices}
	for _, d := range s.registry.ListDevices() {
		if d.Sensor().Known() {
			m.SensorReporting++
		}
	}
	return m
}

func (s *Server) databaseMetrics() *DatabaseMetrics {
	if s.db == nil {
		return nil
	}
	st := s.db.Stats()
	return &DatabaseMetrics{
		OpenConnections: st.OpenConnections,
		InUse:           st.InUse,
		Idle:            st.Idle,
		WaitCount:       st.WaitCount,
	}
}

// handleMetrics reports process, registry and optional backend statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime:       readRuntimeMetrics(),
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			DroppedEvents:    s.hub.Dropped(),
		},
		Devices:  s.deviceMetrics(),
		Database: s.databaseMetrics(),
	}
	if s.discovery != nil {
		m.Discovery = &DiscoveryStats{Services: s.discovery.Len()}
	}

	writeJSON(w, http.StatusOK, m)
}
