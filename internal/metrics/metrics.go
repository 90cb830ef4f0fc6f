// Package metrics exposes Prometheus metrics for the proxy.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ruianderson/sts-proxy/pkg/communicator"
	"github.com/ruianderson/sts-proxy/pkg/guides"
)

const namespace = "sts_proxy"

// Metrics owns its registry so tests and multiple servers in one process do
// not collide on the default one. All methods are safe on a nil receiver.
type Metrics struct {
	reg *prometheus.Registry

	// RunsTotal tracks pipeline runs by action, last stage reached and error kind
	RunsTotal *prometheus.CounterVec
	// RunDuration tracks end-to-end pipeline duration in seconds
	RunDuration *prometheus.HistogramVec
	// GatewayResponsesTotal tracks gateway HTTP responses by status code
	GatewayResponsesTotal *prometheus.CounterVec
	// GatewayDuration tracks gateway round-trip time in seconds
	GatewayDuration prometheus.Histogram
	// GuideReloadsTotal tracks guide reloads by trigger and result
	GuideReloadsTotal *prometheus.CounterVec
	// GuidesLoaded is the number of actions in the active registry
	GuidesLoaded prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Total number of pipeline runs by action, stage and error kind",
			},
			[]string{"action", "stage", "kind"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "run_duration_seconds",
				Help:      "Duration of pipeline runs in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"action"},
		),
		GatewayResponsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "responses_total",
				Help:      "Total number of gateway HTTP responses by status code",
			},
			[]string{"status_code"},
		),
		GatewayDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Duration of gateway requests in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		GuideReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "guides",
				Name:      "reloads_total",
				Help:      "Total number of guide reloads by trigger and result",
			},
			[]string{"trigger", "result"},
		),
		GuidesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "guides",
				Name:      "loaded",
				Help:      "Number of actions in the active guide registry",
			},
		),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RunsTotal,
		m.RunDuration,
		m.GatewayResponsesTotal,
		m.GatewayDuration,
		m.GuideReloadsTotal,
		m.GuidesLoaded,
	)
	return m
}

// unknownActionLabel replaces action names that matched no guide. The name
// comes from the request path, so it must not become a label value.
const unknownActionLabel = "unknown"

func (m *Metrics) ObserveRun(action string, stage communicator.Stage, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	if errors.Is(err, guides.ErrUnknownAction) {
		action = unknownActionLabel
	}
	kind := communicator.Kind(err)
	if kind == "" {
		kind = "none"
	}
	m.RunsTotal.WithLabelValues(action, string(stage), kind).Inc()
	m.RunDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// ObserveGatewayResponse matches transport.HTTP.OnResponse.
func (m *Metrics) ObserveGatewayResponse(status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.GatewayResponsesTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	m.GatewayDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveReload(trigger string, actions int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.GuideReloadsTotal.WithLabelValues(trigger, "error").Inc()
		return
	}
	m.GuideReloadsTotal.WithLabelValues(trigger, "ok").Inc()
	m.GuidesLoaded.Set(float64(actions))
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

var _ communicator.Observer = (*Metrics)(nil)
