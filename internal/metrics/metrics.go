// Package metrics exposes node counters and gauges in Prometheus format.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "envsensor"

// Metrics holds the node's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	measurementTicks   prometheus.Counter
	sampleFailures     *prometheus.CounterVec
	publishFailures    *prometheus.CounterVec
	scheduleFailures   *prometheus.CounterVec
	buttonEvents       *prometheus.CounterVec
	buttonReadFailures prometheus.Counter
	signals            *prometheus.CounterVec
	temperature        prometheus.Gauge
	humidity           prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		measurementTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurement_ticks_total",
			Help:      "Measurement ticks executed.",
		}),
		sampleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_failures_total",
			Help:      "Sensor failures by stage (trigger, temperature, humidity).",
		}, []string{"stage"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Attribute writes rejected by the protocol stack.",
		}, []string{"cluster"}),
		scheduleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_failures_total",
			Help:      "Alarms or callbacks the scheduler refused.",
		}, []string{"task"}),
		buttonEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "button_events_total",
			Help:      "Classified button events delivered.",
		}, []string{"event"}),
		buttonReadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "button_read_failures_total",
			Help:      "Button level reads that failed.",
		}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stack_signals_total",
			Help:      "Lifecycle signals received from the protocol stack.",
		}, []string{"signal", "status"}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last measured temperature.",
		}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "humidity_percent",
			Help:      "Last measured relative humidity.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.measurementTicks,
		m.sampleFailures,
		m.publishFailures,
		m.scheduleFailures,
		m.buttonEvents,
		m.buttonReadFailures,
		m.signals,
		m.temperature,
		m.humidity,
	)
	return m
}

// Registry returns the registry holding the node collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) MeasurementTick() {
	if m != nil {
		m.measurementTicks.Inc()
	}
}

func (m *Metrics) SampleFailed(stage string) {
	if m != nil {
		m.sampleFailures.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) PublishFailed(cluster string) {
	if m != nil {
		m.publishFailures.WithLabelValues(cluster).Inc()
	}
}

func (m *Metrics) ScheduleFailed(task string) {
	if m != nil {
		m.scheduleFailures.WithLabelValues(task).Inc()
	}
}

func (m *Metrics) ButtonEvent(event string) {
	if m != nil {
		m.buttonEvents.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) ButtonReadFailed() {
	if m != nil {
		m.buttonReadFailures.Inc()
	}
}

func (m *Metrics) Signal(signal, status string) {
	if m != nil {
		m.signals.WithLabelValues(signal, status).Inc()
	}
}

func (m *Metrics) Temperature(celsius float64) {
	if m != nil {
		m.temperature.Set(celsius)
	}
}

func (m *Metrics) Humidity(percent float64) {
	if m != nil {
		m.humidity.Set(percent)
	}
}
