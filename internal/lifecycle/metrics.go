package lifecycle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes orchestrator progress to Prometheus.
type Metrics struct {
	Phase             prometheus.Gauge         // Current orchestrator phase (see Phase)
	ComponentState    *prometheus.GaugeVec     // Current state per component (see State)
	StartDuration     *prometheus.HistogramVec // Time spent in Start per component
	StopFailuresTotal *prometheus.CounterVec   // Failed Stop calls per component
}

// NewMetrics creates and registers orchestrator metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	phase := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ferry_orchestrator_phase",
		Help: "Current orchestrator phase (0=created 1=preparing 2=starting 3=running 4=stopping 5=stopped)",
	})

	componentState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ferry_component_state",
		Help: "Current component state (0=created 1=prepared 2=started 3=stopped 4=failed)",
	}, []string{"component"})

	startDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ferry_component_start_duration_seconds",
		Help:    "Time spent starting a component, including connection retries",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
	}, []string{"component"})

	stopFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ferry_component_stop_failures_total",
		Help: "Total number of component stop calls that returned an error",
	}, []string{"component"})

	reg.MustRegister(phase)
	reg.MustRegister(componentState)
	reg.MustRegister(startDuration)
	reg.MustRegister(stopFailures)

	return &Metrics{
		Phase:             phase,
		ComponentState:    componentState,
		StartDuration:     startDuration,
		StopFailuresTotal: stopFailures,
	}
}

func (m *Metrics) setPhase(p Phase) {
	if m == nil {
		return
	}
	m.Phase.Set(float64(p))
}

func (m *Metrics) setState(component string, s State) {
	if m == nil {
		return
	}
	m.ComponentState.WithLabelValues(component).Set(float64(s))
}

func (m *Metrics) observeStart(component string, d time.Duration) {
	if m == nil {
		return
	}
	m.StartDuration.WithLabelValues(component).Observe(d.Seconds())
}

func (m *Metrics) stopFailed(component string) {
	if m == nil {
		return
	}
	m.StopFailuresTotal.WithLabelValues(component).Inc()
}
