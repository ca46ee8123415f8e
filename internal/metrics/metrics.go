package metrics

import (
	"context"
	"net/http"

	"queue-warden/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Collector holds the warden counters on a private registry so tests can
// build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	ActionCounter    *prometheus.CounterVec
	CycleCounter     *prometheus.CounterVec
	ReversedCounter  *prometheus.CounterVec
	FailureCounter   *prometheus.CounterVec
	AuditCounter     *prometheus.CounterVec
	GatewayWaitTotal prometheus.Counter
}

func New() *Collector {
	collector := &Collector{
		registry: prometheus.NewRegistry(),

		ActionCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "warden_moderation_actions_total", Help: "Moderation actions by outcome"},
			[]string{"action", "kind", "result"}),

		CycleCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "warden_reconcile_cycles_total", Help: "Expiry reconciliation cycles run"},
			[]string{"loop"}),

		ReversedCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "warden_reconcile_reversed_total", Help: "Expired bans reversed by the loops"},
			[]string{"loop"}),

		FailureCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "warden_reconcile_failures_total", Help: "Records the loops failed to reverse"},
			[]string{"loop"}),

		AuditCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "warden_audit_events_total", Help: "Audit log entries written"},
			[]string{"level", "event"}),

		GatewayWaitTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "warden_gateway_throttled_total", Help: "Discord REST calls delayed by the local limiter"}),
	}
	for _, metric := range []prometheus.Collector{
		collector.ActionCounter,
		collector.CycleCounter,
		collector.ReversedCounter,
		collector.FailureCounter,
		collector.AuditCounter,
		collector.GatewayWaitTotal,
	} {
		collector.registry.MustRegister(metric)
	}
	return collector
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Action(action, kind, result string) {
	if c == nil {
		return
	}
	c.ActionCounter.With(prometheus.Labels{"action": action, "kind": kind, "result": result}).Inc()
}

func (c *Collector) Cycle(loop string, reversed, failed int) {
	if c == nil {
		return
	}
	c.CycleCounter.With(prometheus.Labels{"loop": loop}).Inc()
	c.ReversedCounter.With(prometheus.Labels{"loop": loop}).Add(float64(reversed))
	c.FailureCounter.With(prometheus.Labels{"loop": loop}).Add(float64(failed))
}

func (c *Collector) Throttled() {
	if c == nil {
		return
	}
	c.GatewayWaitTotal.Inc()
}

// ObserveAudit matches the audit logger's notifier signature.
func (c *Collector) ObserveAudit(_ context.Context, log storage.AuditLog) {
	if c == nil {
		return
	}
	c.AuditCounter.With(prometheus.Labels{"level": log.Level, "event": log.Event}).Inc()
}
