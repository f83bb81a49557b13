package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	ledgerImbalanceCounter *prometheus.CounterVec
	ledgerOperationCounter *prometheus.CounterVec
	transitionCounter      *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	imbalancedAccounts     prometheus.Gauge
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		ledgerImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Number of times an account balance diverged from its entries",
		}, []string{"account_id"})

		ledgerOperationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger engine operations by outcome",
		}, []string{"operation", "result"})

		transitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transitions_total",
			Help: "Committed transaction status transitions",
		}, []string{"kind", "from", "to"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		imbalancedAccounts = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_imbalanced_accounts",
			Help: "Accounts found out of balance by the last reconciliation run",
		})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			ledgerImbalanceCounter,
			ledgerOperationCounter,
			transitionCounter,
			idempotencyCounter,
			imbalancedAccounts,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementLedgerImbalance(accountID string) {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.WithLabelValues(accountID).Inc()
}

func SetImbalancedAccounts(n int) {
	if imbalancedAccounts == nil {
		return
	}
	imbalancedAccounts.Set(float64(n))
}

func IncrementLedgerOperation(operation, result string) {
	if ledgerOperationCounter == nil {
		return
	}
	ledgerOperationCounter.WithLabelValues(operation, result).Inc()
}

func IncrementTransition(kind, from, to string) {
	if transitionCounter == nil {
		return
	}
	transitionCounter.WithLabelValues(kind, from, to).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
