package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RecordsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbridge_records_fetched_total",
			Help: "Records returned by broker polls",
		},
		[]string{"topic"},
	)
	RecordsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbridge_records_processed_total",
			Help: "Records whose caller processing completed",
		},
		[]string{"topic"},
	)
	OffsetsCommitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbridge_offsets_committed_total",
			Help: "Successful offset commit calls",
		},
		[]string{"topic"},
	)
	CommitFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbridge_commit_failures_total",
			Help: "Offset commit calls rejected by the broker",
		},
		[]string{"topic"},
	)
	SendsAcked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbridge_sends_acked_total",
			Help: "Producer sends acknowledged by the broker",
		},
		[]string{"topic"},
	)
	SendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbridge_send_failures_total",
			Help: "Producer sends rejected by the broker",
		},
		[]string{"topic"},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		RecordsFetched, RecordsProcessed,
		OffsetsCommitted, CommitFailures,
		SendsAcked, SendFailures,
	)
}

func Expose(port int) {
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		_ = http.ListenAndServe(fmt.Sprintf(":%d", port), nil)
	}()
}
