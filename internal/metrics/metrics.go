package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Metrics carries the billing-core prometheus collectors.
type Metrics struct {
	PaymentsIngested  *prometheus.CounterVec
	PaymentsDuplicate prometheus.Counter
	LedgerEntries     *prometheus.CounterVec
	GatewaySync       *prometheus.CounterVec
	SchedulerJobRuns  *prometheus.CounterVec
	SchedulerJobError *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		PaymentsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abonix",
			Name:      "payments_ingested_total",
			Help:      "External payments accepted, by trade point.",
		}, []string{"trade_point"}),
		PaymentsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "abonix",
			Name:      "payments_duplicate_total",
			Help:      "External payments rejected as duplicates.",
		}),
		LedgerEntries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abonix",
			Name:      "ledger_entries_total",
			Help:      "Ledger entries appended, by sign.",
		}, []string{"sign"}),
		GatewaySync: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abonix",
			Name:      "gateway_sync_total",
			Help:      "NAS sync attempts, by outcome.",
		}, []string{"outcome"}),
		SchedulerJobRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abonix",
			Name:      "scheduler_job_runs_total",
			Help:      "Scheduler job executions.",
		}, []string{"job"}),
		SchedulerJobError: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abonix",
			Name:      "scheduler_job_errors_total",
			Help:      "Scheduler job failures.",
		}, []string{"job"}),
	}
}

var Module = fx.Module("metrics",
	fx.Provide(New),
)
