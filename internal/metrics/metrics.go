package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailgate_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	EmailsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailgate_emails_sent_total",
			Help: "Total number of send attempts by transport and outcome.",
		},
		[]string{"transport", "status"},
	)

	SendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailgate_send_duration_seconds",
			Help:    "Time spent handing a message to the transport.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"transport"},
	)

	QuotaDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailgate_quota_decisions_total",
			Help: "Quota checks by result (allowed, daily, monthly).",
		},
		[]string{"result"},
	)

	QuotaRecordErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailgate_quota_record_errors_total",
			Help: "Confirmed sends that could not be counted against the quota.",
		},
	)

	BulkChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailgate_bulk_chunks_total",
			Help: "Total number of bulk chunks dispatched.",
		},
	)

	SMTPPoolConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailgate_smtp_pool_connections",
			Help: "Number of open pooled SMTP connections.",
		},
	)

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailgate_rate_limited_total",
			Help: "Requests rejected by the per-IP rate limiter.",
		},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailgate_events_published_total",
			Help: "Send events published to the event bus.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		EmailsSentTotal,
		SendDuration,
		QuotaDecisionsTotal,
		QuotaRecordErrorsTotal,
		BulkChunksTotal,
		SMTPPoolConnections,
		RateLimitedTotal,
		EventsPublishedTotal,
	)
}
