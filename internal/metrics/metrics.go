// Package metrics holds the Prometheus collectors for API traffic, playback
// commands and discovery. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK        = "ok"
	OutcomeHTTPError = "http_error"
	OutcomeTransport = "transport_error"
)

type Metrics struct {
	registry          *prometheus.Registry
	apiRequests       *prometheus.CounterVec
	playbackCommands  *prometheus.CounterVec
	devicesDiscovered prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "airtwitch_api_requests_total",
		Help: "Total number of streaming platform API requests by endpoint and outcome",
	}, []string{"endpoint", "outcome"})
	playbackCommands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "airtwitch_playback_commands_total",
		Help: "Total number of receiver control commands by command and outcome",
	}, []string{"command", "outcome"})
	devicesDiscovered := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "airtwitch_devices_discovered",
		Help: "Number of distinct receivers in the device registry",
	})

	registry.MustRegister(apiRequests, playbackCommands, devicesDiscovered)

	return &Metrics{
		registry:          registry,
		apiRequests:       apiRequests,
		playbackCommands:  playbackCommands,
		devicesDiscovered: devicesDiscovered,
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPIRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) ObservePlaybackCommand(command, outcome string) {
	if m == nil {
		return
	}
	m.playbackCommands.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) SetDevicesDiscovered(n int) {
	if m == nil {
		return
	}
	m.devicesDiscovered.Set(float64(n))
}
