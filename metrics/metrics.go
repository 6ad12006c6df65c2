// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RegistrationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registration_outcomes_total",
			Help: "Register and unregister calls by outcome",
		},
		[]string{"operation", "outcome"},
	)

	TransactionRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_transaction_retries_total",
			Help: "Transactions retried after contention",
		},
		[]string{"backend"},
	)

	TransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_transaction_duration_seconds",
			Help:    "Duration of store transactions including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "result"},
	)

	NotificationsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_enqueue_total",
			Help: "Notification enqueue attempts by result",
		},
		[]string{"result"},
	)

	NotificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivery_total",
			Help: "Notification deliveries by result",
		},
		[]string{"result"},
	)

	QueryCorrections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "query_sort_corrections_total",
			Help: "Queries whose sort order was corrected to start with the inequality field",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordRegistration counts one coordinator outcome.
func RecordRegistration(operation, outcome string) {
	RegistrationOutcomes.WithLabelValues(operation, outcome).Inc()
}

// RecordTransaction observes a finished transaction.
func RecordTransaction(backend string, retries int, err error, elapsed time.Duration) {
	if retries > 0 {
		TransactionRetries.WithLabelValues(backend).Add(float64(retries))
	}
	result := "committed"
	if err != nil {
		result = "failed"
	}
	TransactionDuration.WithLabelValues(backend, result).Observe(elapsed.Seconds())
}

// RecordHTTPRequest observes one served request.
func RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
