package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Onode cache metrics
	OnodeCacheSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "objstore_onode_cache_size",
			Help: "Number of live onodes held in the per-collection cache",
		},
		[]string{"collection"},
	)

	OnodeCacheLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objstore_onode_cache_loads_total",
			Help: "Total onode cache lookups by outcome (hit, load, coalesced)",
		},
		[]string{"outcome"},
	)

	// Fragment metrics
	FragmentsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "objstore_fragments_total",
			Help: "Total number of fragment files currently referenced",
		},
	)

	FragmentBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "objstore_fragment_buckets_total",
			Help: "Total number of fset bucket directories provisioned",
		},
	)

	FragmentAllocations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "objstore_fragment_allocations_total",
			Help: "Total number of fragment ids allocated",
		},
	)

	// WAL metrics
	WALPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "objstore_wal_pending",
			Help: "Number of WAL entries committed to the kv store but not yet applied",
		},
	)

	WALApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "objstore_wal_apply_duration_seconds",
			Help:    "Time taken by one WAL replay pass over every pending entry",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Transaction / commit pipeline metrics
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objstore_transactions_total",
			Help: "Total number of submitted transactions by outcome (committed, aborted)",
		},
		[]string{"outcome"},
	)

	CommitLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "objstore_commit_latency_seconds",
			Help:    "Time the commit pipeline takes to commit one staged transaction",
			Buckets: prometheus.DefBuckets,
		},
	)

	FsyncLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "objstore_fsync_latency_seconds",
			Help:    "Time spent fsyncing newly written fragment file descriptors",
			Buckets: prometheus.DefBuckets,
		},
	)

	SequencerQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "objstore_sequencer_queue_depth",
			Help: "Number of in-flight transaction contexts queued per sequencer",
		},
		[]string{"sequencer"},
	)

	CollectionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "objstore_collections_total",
			Help: "Total number of collections present in the store",
		},
	)
)

func init() {
	prometheus.MustRegister(OnodeCacheSize)
	prometheus.MustRegister(OnodeCacheLoads)
	prometheus.MustRegister(FragmentsTotal)
	prometheus.MustRegister(FragmentBucketsTotal)
	prometheus.MustRegister(FragmentAllocations)
	prometheus.MustRegister(WALPending)
	prometheus.MustRegister(WALApplyDuration)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(CommitLatency)
	prometheus.MustRegister(FsyncLatency)
	prometheus.MustRegister(SequencerQueueDepth)
	prometheus.MustRegister(CollectionsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
