package telemetry

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ChengChengYang0416/multirotor-geometry-control/geocontrol"
)

// Metrics exports control-loop health to Prometheus. It is a
// geocontrol.Observer.
type Metrics struct {
	registry *prometheus.Registry

	cycles    prometheus.Counter
	faults    *prometheus.CounterVec
	saturated prometheus.Gauge
	thrust    prometheus.Gauge
	rotors    *prometheus.GaugeVec
	latency   prometheus.Histogram
	mean      prometheus.Gauge

	mu  sync.Mutex
	acc *VarianceAccumulator
}

// NewMetrics registers the control-loop collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geocontrol_cycles_total",
			Help: "Control cycles computed while active",
		}),
		faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geocontrol_faults_total",
				Help: "Control cycles that fell back to the zero command, by reason",
			},
			[]string{"reason"},
		),
		saturated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geocontrol_saturated_rotors",
			Help: "Rotors clipped to zero in the last cycle",
		}),
		thrust: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geocontrol_thrust_newtons",
			Help: "Collective thrust of the last cycle",
		}),
		rotors: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "geocontrol_rotor_velocity_radians_per_second",
				Help: "Commanded rotor angular velocity of the last cycle",
			},
			[]string{"rotor"},
		),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geocontrol_compute_seconds",
			Help:    "Time spent computing one control cycle",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		mean: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geocontrol_compute_seconds_ewma",
			Help: "Exponentially weighted mean of the compute time",
		}),
	}
	m.registry.MustRegister(m.cycles, m.faults, m.saturated, m.thrust, m.rotors, m.latency, m.mean)
	return m
}

// ObserveCycle records one active control cycle.
func (m *Metrics) ObserveCycle(rotors []float64, d geocontrol.Diagnostics, elapsed time.Duration, err error) {
	m.cycles.Inc()
	if err != nil {
		m.faults.WithLabelValues(FaultReason(err)).Inc()
	}
	m.saturated.Set(float64(d.Saturated))
	m.thrust.Set(d.Thrust)
	for i, w := range rotors {
		m.rotors.WithLabelValues(strconv.Itoa(i)).Set(w)
	}

	s := elapsed.Seconds()
	m.latency.Observe(s)
	m.mu.Lock()
	if m.acc == nil {
		m.acc = NewVarianceAccumulator(s, latencyDecay)
	}
	_, mean, _ := m.acc.Add(s)
	m.mu.Unlock()
	m.mean.Set(mean)
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FaultReason is a short label for a controller error.
func FaultReason(err error) string {
	switch {
	case errors.Is(err, geocontrol.ErrDegenerateForce):
		return "degenerate_force"
	case errors.Is(err, geocontrol.ErrDegenerateHeading):
		return "degenerate_heading"
	case errors.Is(err, geocontrol.ErrBadTimestep):
		return "bad_timestep"
	case errors.Is(err, geocontrol.ErrNonFinite):
		return "non_finite"
	case errors.Is(err, geocontrol.ErrNotConfigured):
		return "not_configured"
	default:
		return "other"
	}
}

const latencyDecay = 0.99
