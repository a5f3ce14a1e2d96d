package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// Funds movement
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transactions_total",
			Help: "Ledger records reaching a terminal status",
		},
		[]string{"type", "status"}, // TRANSFER|DEPOSIT|WITHDRAWAL x SUCCESSFUL|FAILED
	)
	TransfersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfers_rejected_total",
			Help: "Transfer attempts rejected before any balance mutation",
		},
		[]string{"reason"}, // insufficient_funds|budget_exceeded|not_found|invalid_amount
	)
	InconsistencyDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "balance_inconsistencies_total",
			Help: "Invariant violations needing manual reconciliation",
		},
	)

	// Worker queue
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
)

// Handler serves the /metrics endpoint.
var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(TransfersRejected)
	prometheus.MustRegister(InconsistencyDetected)
	prometheus.MustRegister(WorkerQueueDepth)
}
