package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gin-gonic/gin"
)

var (
	Processed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_events_processed_total",
		Help: "Events processed successfully, by topic",
	}, []string{"topic"})
	Duplicates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_duplicate_deliveries_total",
		Help: "Deliveries short-circuited by the idempotency store, by topic",
	}, []string{"topic"})
	Rejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_rejected_deliveries_total",
		Help: "Deliveries rejected permanently (bad signature, malformed body), by topic",
	}, []string{"topic"})
	DeadLettered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_dead_lettered_total",
		Help: "Events routed to the dead-letter path",
	})
	PublishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_publish_failures_total",
		Help: "Outbound publish calls that failed",
	})
	txLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_order_tx_seconds",
		Help:    "Order transaction latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(Processed, Duplicates, Rejected, DeadLettered, PublishFailures, txLatency)
}

// TxTimer times one order transaction; call ObserveDuration when done.
func TxTimer() *prometheus.Timer {
	return prometheus.NewTimer(txLatency)
}

// Handler exposes the Prometheus endpoint as a gin handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
