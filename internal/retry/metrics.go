package retry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts dial attempts and failures per target.
type Metrics struct {
	AttemptsTotal *prometheus.CounterVec // Dial attempts, including successful ones
	FailuresTotal *prometheus.CounterVec // Dial attempts that returned an error
}

// NewMetrics creates and registers the dial counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ferry_connect_attempts_total",
		Help: "Total number of connection attempts to remote dependencies",
	}, []string{"target"})

	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ferry_connect_failures_total",
		Help: "Total number of failed connection attempts to remote dependencies",
	}, []string{"target"})

	reg.MustRegister(attempts)
	reg.MustRegister(failures)

	return &Metrics{
		AttemptsTotal: attempts,
		FailuresTotal: failures,
	}
}

// OnAttempt implements Observer.
func (m *Metrics) OnAttempt(target string, _ int) {
	m.AttemptsTotal.WithLabelValues(target).Inc()
}

// OnFailure implements Observer.
func (m *Metrics) OnFailure(target string, _ int, _ error) {
	m.FailuresTotal.WithLabelValues(target).Inc()
}
