package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	transferCounter       *prometheus.CounterVec
	riskTierCounter       *prometheus.CounterVec
	anchorCounter         *prometheus.CounterVec
	idempotencyCounter    *prometheus.CounterVec
	multiSigPendingGauge  prometheus.Gauge
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		transferCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfer_outcomes_total",
			Help: "Transfer pipeline outcomes",
		}, []string{"outcome"})

		riskTierCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_assessments_total",
			Help: "Risk assessments by tier",
		}, []string{"tier"})

		anchorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anchoring_attempts_total",
			Help: "External anchoring outcomes",
		}, []string{"result"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		multiSigPendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "multisig_pending_transactions",
			Help: "Multi-signature transactions waiting for signatures",
		})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			transferCounter,
			riskTierCounter,
			anchorCounter,
			idempotencyCounter,
			multiSigPendingGauge,
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

func IncrementTransferOutcome(outcome string) {
	if transferCounter == nil {
		return
	}
	transferCounter.WithLabelValues(outcome).Inc()
}

func IncrementRiskTier(tier string) {
	if riskTierCounter == nil {
		return
	}
	riskTierCounter.WithLabelValues(tier).Inc()
}

func IncrementAnchorResult(result string) {
	if anchorCounter == nil {
		return
	}
	anchorCounter.WithLabelValues(result).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func SetMultiSigPending(count int64) {
	if multiSigPendingGauge == nil {
		return
	}
	multiSigPendingGauge.Set(float64(count))
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
