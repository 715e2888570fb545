// Package metrics exports relay counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keyword_relay"

// Metrics holds the relay's collectors. A nil *Metrics is valid and records
// nothing, which keeps tests and optional wiring simple.
type Metrics struct {
	registry *prometheus.Registry

	cacheLookups *prometheus.CounterVec
	ruleFetches  *prometheus.CounterVec
	rulesLoaded  *prometheus.GaugeVec
	matches      *prometheus.CounterVec
	replies      *prometheus.CounterVec
	logAppends   *prometheus.CounterVec
	webhooks     *prometheus.CounterVec
}

// New registers the relay collectors on registry. A nil registry gets a
// fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{registry: registry}

	m.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Rule cache lookups by outcome (hit, refresh, stale)",
		},
		[]string{"result"},
	)

	m.ruleFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetches_total",
			Help:      "Rule source fetches by table and status",
		},
		[]string{"table", "status"},
	)

	m.rulesLoaded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "rules",
			Help:      "Number of rules held for a table",
		},
		[]string{"table"},
	)

	m.matches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Text messages classified, by tenant and outcome (matched, unmatched)",
		},
		[]string{"tenant", "result"},
	)

	m.replies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Replies sent, by tenant and status",
		},
		[]string{"tenant", "status"},
	)

	m.logAppends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "unmatched",
			Name:      "appends_total",
			Help:      "Unmatched log appends by status (ok, error, dropped)",
		},
		[]string{"status"},
	)

	m.webhooks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Webhook deliveries by status (accepted, rejected)",
		},
		[]string{"status"},
	)

	registry.MustRegister(
		m.cacheLookups,
		m.ruleFetches,
		m.rulesLoaded,
		m.matches,
		m.replies,
		m.logAppends,
		m.webhooks,
	)

	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RuleFetch(table, status string) {
	if m == nil {
		return
	}
	m.ruleFetches.WithLabelValues(table, status).Inc()
}

func (m *Metrics) RulesLoaded(table string, n int) {
	if m == nil {
		return
	}
	m.rulesLoaded.WithLabelValues(table).Set(float64(n))
}

func (m *Metrics) Message(tenant, result string) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(tenant, result).Inc()
}

func (m *Metrics) Reply(tenant, status string) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(tenant, status).Inc()
}

func (m *Metrics) LogAppend(status string) {
	if m == nil {
		return
	}
	m.logAppends.WithLabelValues(status).Inc()
}

func (m *Metrics) Webhook(status string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(status).Inc()
}
