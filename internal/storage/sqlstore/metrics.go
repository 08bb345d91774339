package sqlstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "file_record_query_duration_seconds",
			Help:    "Duration of file_record repository operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)

	queryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "file_record_query_failures_total",
			Help: "Total number of failed file_record repository operations",
		},
		[]string{"operation"},
	)
)

func observe(operation string, start time.Time, err error) {
	queryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		queryFailures.WithLabelValues(operation).Inc()
	}
}
