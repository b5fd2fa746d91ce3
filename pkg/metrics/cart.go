package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics records reconciliation and revalidation outcomes for the
// session cart engine.
type CartMetrics struct {
	reconciliations *prometheus.CounterVec
	revalidations   *prometheus.CounterVec
	mutations       *prometheus.CounterVec
}

const (
	ReconcileApplied    = "applied"
	ReconcileStaleDrop  = "stale_dropped"
	ReconcileRolledBack = "rolled_back"

	RevalidateRun        = "run"
	RevalidateSuppressed = "suppressed"
	RevalidateSuperseded = "superseded"
)

// NewCartMetrics registers the cart engine metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	reconciliations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_reconciliations_total",
		Help: "Reconciliation outcomes for optimistic cart mutations.",
	}, []string{"outcome"})
	revalidations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_revalidations_total",
		Help: "Full-collection revalidation runs by result.",
	}, []string{"result"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Local optimistic mutations by operation.",
	}, []string{"op"})
	reg.MustRegister(reconciliations, revalidations, mutations)
	return &CartMetrics{
		reconciliations: reconciliations,
		revalidations:   revalidations,
		mutations:       mutations,
	}
}

// IncReconcile increments the reconciliation counter for the given outcome.
func (c *CartMetrics) IncReconcile(outcome string) {
	if c == nil || c.reconciliations == nil {
		return
	}
	c.reconciliations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncRevalidate increments the revalidation counter for the given result.
func (c *CartMetrics) IncRevalidate(result string) {
	if c == nil || c.revalidations == nil {
		return
	}
	c.revalidations.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncMutation increments the local mutation counter for the named operation.
func (c *CartMetrics) IncMutation(op string) {
	if c == nil || c.mutations == nil {
		return
	}
	c.mutations.WithLabelValues(normalizeLabel(op)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
