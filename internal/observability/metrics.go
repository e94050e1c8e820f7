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
	sweepRunCounter       *prometheus.CounterVec
	batchOutcomeCounter   *prometheus.CounterVec
	transferDuration      prometheus.Histogram
	pendingAmountGauge    prometheus.Gauge
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		sweepRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_sweep_runs_total",
			Help: "Sweep invocation outcomes",
		}, []string{"trigger", "result"})

		batchOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_batch_outcomes_total",
			Help: "Per-restaurant batch outcomes within sweeps",
		}, []string{"outcome"})

		transferDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "payout_transfer_duration_seconds",
			Help:    "Gateway transfer call latency",
			Buckets: prometheus.DefBuckets,
		})

		pendingAmountGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payout_pending_claimed_records",
			Help: "Records claimed by the most recent sweep",
		})

		prometheus.MustRegister(
			httpDurationHistogram,
			sweepRunCounter,
			batchOutcomeCounter,
			transferDuration,
			pendingAmountGauge,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementSweepRun(trigger, result string) {
	if sweepRunCounter == nil {
		return
	}
	sweepRunCounter.WithLabelValues(trigger, result).Inc()
}

// IncrementBatchOutcome records one per-restaurant group result:
// completed, failed, released or skipped.
func IncrementBatchOutcome(outcome string) {
	if batchOutcomeCounter == nil {
		return
	}
	batchOutcomeCounter.WithLabelValues(outcome).Inc()
}

func ObserveTransfer(duration time.Duration) {
	if transferDuration == nil {
		return
	}
	transferDuration.Observe(duration.Seconds())
}

func SetClaimedRecords(count int) {
	if pendingAmountGauge == nil {
		return
	}
	pendingAmountGauge.Set(float64(count))
}
