// Package metrics exposes the award engine's prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts reward outcomes by type and reason.
type Metrics struct {
	StarsCredited  *prometheus.CounterVec
	CreditRefusals *prometheus.CounterVec
	DedupHits      *prometheus.CounterVec
}

// New registers the award counters with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StarsCredited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcana_stars_credited_total",
			Help: "Stars credited by the award engine, by transaction type.",
		}, []string{"type"}),
		CreditRefusals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcana_credit_refusals_total",
			Help: "Credits refused by policy, by transaction type and reason.",
		}, []string{"type", "reason"}),
		DedupHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcana_dedup_hits_total",
			Help: "Duplicate award attempts rejected by unique constraints.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.StarsCredited, m.CreditRefusals, m.DedupHits)
	return m
}
