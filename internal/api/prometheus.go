package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/dysonlink/internal/device"
)

const metricsNamespace = "dysonlink"

// deviceCollector reads the registry on every scrape, so exported values are
// always the cached snapshot at scrape time.
type deviceCollector struct {
	registry *device.Registry
	hub      *Hub

	connected  *prometheus.Desc
	fanSpeed   *prometheus.Desc
	sensor     *prometheus.Desc
	sensorSeen *prometheus.Desc
	wsClients  *prometheus.Desc
}

func newDeviceCollector(registry *device.Registry, hub *Hub) *deviceCollector {
	return &deviceCollector{
		registry: registry,
		hub:      hub,
		connected: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "device", "connected"),
			"1 if the device session is open.",
			[]string{"serial"}, nil,
		),
		fanSpeed: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "device", "fan_speed"),
			"Reported fan speed level; absent when auto or unknown.",
			[]string{"serial"}, nil,
		),
		sensor: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "device", "sensor"),
			"Latest environmental reading.",
			[]string{"serial", "reading"}, nil,
		),
		sensorSeen: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "device", "sensor_updated_timestamp_seconds"),
			"Unix time of the latest environmental reading.",
			[]string{"serial"}, nil,
		),
		wsClients: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "websocket", "clients"),
			"Connected WebSocket clients.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *deviceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connected
	ch <- c.fanSpeed
	ch <- c.sensor
	ch <- c.sensorSeen
	ch <- c.wsClients
}

// Collect implements prometheus.Collector.
func (c *deviceCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.wsClients, prometheus.GaugeValue, float64(c.hub.ClientCount()))

	for _, d := range c.registry.ListDevices() {
		serial := d.Serial()
		connected := 0.0
		if d.IsConnected() {
			connected = 1
		}
		ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, connected, serial)

		st, sensor := d.Snapshot()
		if level, ok := st.FanSpeed.Level(); ok {
			ch <- prometheus.MustNewConstMetric(c.fanSpeed, prometheus.GaugeValue, float64(level), serial)
		}

		if !sensor.Known() {
			continue
		}
		readings := []struct {
			name  string
			value int
		}{
			{"temperature_celsius", sensor.Temperature},
			{"humidity_percent", sensor.Humidity},
			{"pm25", sensor.PM25},
			{"pm10", sensor.PM10},
			{"voc", sensor.VOC},
			{"nox", sensor.NOx},
		}
		for _, r := range readings {
			ch <- prometheus.MustNewConstMetric(c.sensor, prometheus.GaugeValue, float64(r.value), serial, r.name)
		}
		ch <- prometheus.MustNewConstMetric(c.sensorSeen, prometheus.GaugeValue, float64(sensor.UpdatedAt.Unix()), serial)
	}
}

// prometheusHandler serves the device collector plus Go runtime metrics.
// Each server gets its own registry.
func (s *Server) prometheusHandler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		newDeviceCollector(s.registry, s.hub),
		collectors.NewGoCollector(),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
