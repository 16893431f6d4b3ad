package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch pipeline metrics
var (
	FetchOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hato_fetch_operations_total",
			Help: "Total number of mailbox fetch operations",
		},
		[]string{"operation", "result"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hato_fetch_duration_seconds",
			Help:    "Duration of mailbox fetch operations in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"operation"},
	)

	MessagesParsedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hato_messages_parsed_total",
			Help: "Total number of messages run through the parser",
		},
		[]string{"kind", "result"},
	)
)

// Session and connection metrics
var (
	ConnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hato_imap_connect_attempts_total",
			Help: "Total number of IMAP connection attempts",
		},
		[]string{"result"},
	)

	SessionsOpenedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hato_imap_sessions_opened_total",
			Help: "Total number of IMAP sessions opened",
		},
	)

	ActiveClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hato_active_clients",
			Help: "Current number of live account clients",
		},
	)
)

// Token metrics
var (
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hato_token_refreshes_total",
			Help: "Total number of OAuth2 token refresh exchanges",
		},
		[]string{"result"},
	)

	TokenRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hato_token_refresh_duration_seconds",
			Help:    "Duration of token refresh exchanges in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Account store metrics
var (
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hato_store_operations_total",
			Help: "Total number of account store operations",
		},
		[]string{"backend", "operation", "result"},
	)

	AccountsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hato_accounts_total",
			Help: "Number of accounts in the store at last load",
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hato_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hato_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Archive metrics
var (
	ArchiveUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hato_archive_uploads_total",
			Help: "Total number of raw message archive uploads",
		},
		[]string{"result"},
	)
)
