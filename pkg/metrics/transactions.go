package metrics

import "github.com/prometheus/client_golang/prometheus"

// TransactionMetrics tracks outcomes of ledger write operations.
type TransactionMetrics struct {
	created        *prometheus.CounterVec
	reversed       *prometheus.CounterVec
	rejected       *prometheus.CounterVec
	idempotentHits prometheus.Counter
}

// NewTransactionMetrics registers ledger counters on the provided registerer.
func NewTransactionMetrics(reg prometheus.Registerer) *TransactionMetrics {
	if reg == nil {
		return &TransactionMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_created_total",
		Help: "Transactions committed to the ledger.",
	}, []string{"type"})
	reversed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_reversed_total",
		Help: "Reversal entries appended to the ledger.",
	}, []string{"reason"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_rejected_total",
		Help: "Ledger writes rejected before commit.",
	}, []string{"reason"})
	idempotentHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_replays_total",
		Help: "Requests answered from stored idempotency records.",
	})
	reg.MustRegister(created, reversed, rejected, idempotentHits)
	return &TransactionMetrics{
		created:        created,
		reversed:       reversed,
		rejected:       rejected,
		idempotentHits: idempotentHits,
	}
}

// IncCreated increments the created counter for the transaction type.
func (t *TransactionMetrics) IncCreated(txType string) {
	if t == nil || t.created == nil {
		return
	}
	t.created.WithLabelValues(normalizeLabel(txType)).Inc()
}

// IncReversed increments the reversal counter with the reason (update or delete).
func (t *TransactionMetrics) IncReversed(reason string) {
	if t == nil || t.reversed == nil {
		return
	}
	t.reversed.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncRejected increments the rejection counter with the reason.
func (t *TransactionMetrics) IncRejected(reason string) {
	if t == nil || t.rejected == nil {
		return
	}
	t.rejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncIdempotentReplay increments the replay counter.
func (t *TransactionMetrics) IncIdempotentReplay() {
	if t == nil || t.idempotentHits == nil {
		return
	}
	t.idempotentHits.Inc()
}
