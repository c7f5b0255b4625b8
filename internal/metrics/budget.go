package metrics

import "github.com/prometheus/client_golang/prometheus"

// Token budget metrics, shared by both backends.
var (
	BudgetTokensSpent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_tokens_spent_total",
			Help:      "Tokens charged against the budget",
		},
		[]string{"backend"}, // "embedding" / "generation"
	)

	BudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_tokens_remaining",
			Help:      "Tokens left in the budget period, -1 when unlimited",
		},
		[]string{"period"},
	)
)

var budgetMetricsRegistered bool

// RegisterBudgetMetrics registers token budget metrics. Must be called once from main.
func RegisterBudgetMetrics() {
	if budgetMetricsRegistered {
		return
	}
	prometheus.MustRegister(BudgetTokensSpent)
	prometheus.MustRegister(BudgetTokensRemaining)
	budgetMetricsRegistered = true
}
