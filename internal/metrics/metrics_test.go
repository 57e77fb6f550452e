package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ProposalWritten("create")
	m.ProposalWritten("create")
	m.ProposalWritten("update")
	m.SideEffectFailed("offer_assignment")
	m.OffersExpired(3)
	m.OffersExpired(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.proposalWrites.WithLabelValues("create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.proposalWrites.WithLabelValues("update")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sideEffectFailures.WithLabelValues("offer_assignment")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.offersExpired))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ProposalWritten("create")
		m.DuplicatePrevented()
		m.DraftLookupFailed("cache")
		m.SideEffectFailed("activity")
		m.OfferApplied("bundle_rule")
		m.OffersExpired(1)
	})
}
