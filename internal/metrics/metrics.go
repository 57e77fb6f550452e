package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "proposals"

// Metrics groups the counters exported by the proposal engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	proposalWrites      *prometheus.CounterVec
	duplicatesPrevented prometheus.Counter
	draftLookupFailures *prometheus.CounterVec
	sideEffectFailures  *prometheus.CounterVec
	offersApplied       *prometheus.CounterVec
	offersExpired       prometheus.Counter
}

// New registers the counters on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		proposalWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Committed proposal writes by path.",
		}, []string{"path"}),
		duplicatesPrevented: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_drafts_prevented_total",
			Help:      "Create requests turned into updates of a recent draft.",
		}),
		draftLookupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draft_lookup_failures_total",
			Help:      "Draft lookup failures by stage.",
		}, []string{"stage"}),
		sideEffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Swallowed best-effort failures by step.",
		}, []string{"step"}),
		offersApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offers_applied_total",
			Help:      "Applied offer rows written by offer type.",
		}, []string{"type"}),
		offersExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offers_expired_total",
			Help:      "Applied offers flipped to expired by the sweeper.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.proposalWrites,
			m.duplicatesPrevented,
			m.draftLookupFailures,
			m.sideEffectFailures,
			m.offersApplied,
			m.offersExpired,
		)
	}
	return m
}

func (m *Metrics) ProposalWritten(path string) {
	if m == nil {
		return
	}
	m.proposalWrites.WithLabelValues(path).Inc()
}

func (m *Metrics) DuplicatePrevented() {
	if m == nil {
		return
	}
	m.duplicatesPrevented.Inc()
}

func (m *Metrics) DraftLookupFailed(stage string) {
	if m == nil {
		return
	}
	m.draftLookupFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) SideEffectFailed(step string) {
	if m == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) OfferApplied(offerType string) {
	if m == nil {
		return
	}
	m.offersApplied.WithLabelValues(offerType).Inc()
}

func (m *Metrics) OffersExpired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.offersExpired.Add(float64(n))
}
