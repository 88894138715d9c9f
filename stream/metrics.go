package stream

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/SK-Rookies-Final-Project/Backend/metric"
)

// Metrics holds Prometheus metrics for the registry and its consumers
type Metrics struct {
	activeConnections *prometheus.GaugeVec
	activeConsumers   *prometheus.GaugeVec
	dispatchedTotal   *prometheus.CounterVec
	pushFailures      *prometheus.CounterVec
	consumerErrors    *prometheus.CounterVec
	sweepRemoved      prometheus.Counter
}

// newMetrics creates and registers registry metrics. A nil registry disables
// metrics entirely.
func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		activeConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "auditbridge",
			Subsystem: "stream",
			Name:      "active_connections",
			Help:      "Currently open client connections",
		}, []string{"category"}),

		activeConsumers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "auditbridge",
			Subsystem: "stream",
			Name:      "active_consumers",
			Help:      "Currently running category consumers",
		}, []string{"category"}),

		dispatchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditbridge",
			Subsystem: "stream",
			Name:      "dispatched_total",
			Help:      "Messages dispatched to client connections",
		}, []string{"category"}),

		pushFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditbridge",
			Subsystem: "stream",
			Name:      "push_failures_total",
			Help:      "Pushes that failed and removed their connection",
		}, []string{"category"}),

		consumerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditbridge",
			Subsystem: "stream",
			Name:      "consumer_errors_total",
			Help:      "Transient poll errors logged by category consumers",
		}, []string{"category"}),

		sweepRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auditbridge",
			Subsystem: "stream",
			Name:      "sweep_removed_total",
			Help:      "Dead connections removed by the periodic sweep",
		}),
	}

	const component = "stream"
	if err := registry.RegisterGaugeVec(component, "active_connections", m.activeConnections); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec(component, "active_consumers", m.activeConsumers); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(component, "dispatched_total", m.dispatchedTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(component, "push_failures_total", m.pushFailures); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(component, "consumer_errors_total", m.consumerErrors); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "sweep_removed_total", m.sweepRemoved); err != nil {
		return nil, err
	}

	return m, nil
}
