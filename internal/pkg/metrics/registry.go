package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database/Repository Metrics
var (
	// DBOperations tracks total database operations
	DBOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arachnid_db_operations_total",
			Help: "Total database operations by repository, operation, and status",
		},
		[]string{"repo", "operation", "status"},
	)

	// DBDuration tracks database operation latency
	DBDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "arachnid_db_operation_duration_ms",
			Help:                            "Database operation duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"repo", "operation"},
	)

	// DBRowsAffected tracks rows affected by write operations
	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "arachnid_db_rows_affected",
			Help:                            "Number of rows affected by database write operations",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"repo", "operation"},
	)

	// DBErrors tracks database errors by type
	DBErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arachnid_db_errors_total",
			Help: "Total database errors by repository, operation, and error type",
		},
		[]string{"repo", "operation", "error_type"},
	)
)

// Roster cache metrics
var (
	// CacheSize tracks current cache size
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arachnid_roster_cache_entries",
			Help: "Current number of entries in the roster cache",
		},
		[]string{"cache_name"},
	)
)

// Discord API Metrics
var (
	// DiscordAPICalls tracks Discord API calls
	DiscordAPICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arachnid_discord_api_calls_total",
			Help: "Total Discord API calls by method, route (normalized path), bucket (Discord's rate limit bucket ID), and status code",
		},
		[]string{"method", "route", "bucket", "status_code"},
	)

	// DiscordAPIDuration tracks Discord API latency
	DiscordAPIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "arachnid_discord_api_duration_ms",
			Help:                            "Discord API call duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"method", "route", "bucket"},
	)

	// DiscordAPIErrors tracks Discord API errors
	DiscordAPIErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arachnid_discord_api_errors_total",
			Help: "Total Discord API errors by route, bucket, and error type",
		},
		[]string{"route", "bucket", "error_type"},
	)

	// DiscordRateLimitRemaining tracks rate limit remaining requests
	DiscordRateLimitRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arachnid_discord_ratelimit_remaining",
			Help: "Discord rate limit remaining requests (by route and bucket)",
		},
		[]string{"route", "bucket"},
	)

	// DiscordRateLimitHits tracks rate limit hits (429 responses)
	DiscordRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arachnid_discord_ratelimit_hits_total",
			Help: "Total Discord rate limit hits (429 responses, by route and bucket)",
		},
		[]string{"route", "bucket"},
	)
)

// Telegram and pipeline metrics
var (
	// TelegramEvents tracks inbound Telegram updates by type
	TelegramEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arachnid_telegram_events_total",
			Help: "Total Telegram updates received by update type",
		},
		[]string{"update_type"},
	)

	// PipelineInFlight tracks message handlers currently running
	PipelineInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arachnid_pipeline_in_flight",
			Help: "Number of message handlers currently running",
		},
	)

	// PipelineHandlerFailures tracks handler errors and recovered panics
	PipelineHandlerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arachnid_pipeline_handler_failures_total",
			Help: "Total message handler failures by kind (error, panic)",
		},
		[]string{"kind"},
	)

	// PipelineHandlerDuration tracks message handler latency
	PipelineHandlerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:                            "arachnid_pipeline_handler_duration_ms",
			Help:                            "Message handler duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
	)
)

// Link and reconciliation metrics
var (
	// LinkRequests tracks link requests by terminal outcome
	LinkRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arachnid_link_requests_total",
			Help: "Total link requests by outcome",
		},
		[]string{"outcome"},
	)

	// SweepRuns tracks reconciliation sweep runs
	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arachnid_sweep_runs_total",
			Help: "Total reconciliation sweep runs by sweep and status",
		},
		[]string{"sweep", "status"},
	)

	// SweepCorrections tracks drift corrected by sweeps
	SweepCorrections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arachnid_sweep_corrections_total",
			Help: "Total corrections applied by sweeps (row_deleted, role_revoked)",
		},
		[]string{"sweep", "action"},
	)

	// Associations tracks the number of stored associations seen by the last sweep
	Associations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arachnid_associations",
			Help: "Number of stored associations observed by the last sweep",
		},
	)
)
