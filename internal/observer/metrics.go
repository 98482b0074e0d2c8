package observer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for roster load metrics
	rosterLoadLabels = []string{"company_id", "result"}
	// Labels for refresh trigger metrics
	refreshTriggerLabels = []string{"company_id", "source"}

	RosterLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_inbox_service_roster_loads_total",
			Help: "Total number of roster load cycles, labeled by outcome.",
		},
		rosterLoadLabels,
	)
	RosterLoadDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_inbox_service_roster_load_duration_seconds",
			Help:    "Histogram of full roster load cycle durations, gateway fetch included.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"company_id"},
	)
	RosterMergeDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_inbox_service_roster_merge_duration_seconds",
			Help:    "Histogram of in-memory merge durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"company_id"},
	)
	RosterConversations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wa_inbox_service_roster_conversations",
			Help: "Number of conversations in the most recent roster snapshot.",
		},
		[]string{"company_id"},
	)
	RefreshTriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_inbox_service_refresh_triggers_total",
			Help: "Total number of refresh triggers, labeled by source (search, realtime, poll, manual).",
		},
		refreshTriggerLabels,
	)
)

// Metrics related to the messaging gateway client
var (
	gatewayLabels = []string{"endpoint", "status"}

	gatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_inbox_service_gateway_requests_total",
			Help: "Total number of HTTP requests issued to the messaging gateway.",
		},
		gatewayLabels,
	)
	gatewayRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_inbox_service_gateway_request_duration_seconds",
			Help:    "Histogram of gateway request durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"endpoint"},
	)
	gatewayRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_inbox_service_gateway_retries_total",
			Help: "Total number of gateway request retries after a failed attempt.",
		},
		[]string{"endpoint"},
	)
)

// Metrics related to avatar enrichment
var (
	avatarCacheLabels = []string{"company_id", "result"}

	avatarCacheChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_inbox_service_avatar_cache_checks_total",
			Help: "Total number of avatar cache lookups, labeled by result.",
		},
		avatarCacheLabels,
	)
	avatarFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_inbox_service_avatar_fetches_total",
			Help: "Total number of profile picture fetches, labeled by result.",
		},
		[]string{"result"},
	)
	avatarQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wa_inbox_service_avatar_queue_length",
		Help: "Approximate number of phones waiting in the avatar worker pool.",
	})
)

// Metrics related to realtime feed consumption
var (
	feedEventLabels = []string{"event_type", "company_id"}

	feedEventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_inbox_service_feed_events_received_total",
			Help: "Total number of events received from the realtime feed.",
		},
		feedEventLabels,
	)
	feedEventsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_inbox_service_feed_events_failed_total",
			Help: "Total number of realtime feed events that failed processing.",
		},
		feedEventLabels,
	)
)

// Metrics for the seeder load generator
var (
	loadgenLabels = []string{"subject", "company_id"}

	loadgenMessagesAttemptedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_inbox_service_loadgen_messages_attempted_total",
			Help: "Total number of seeder events generated for publishing.",
		},
		loadgenLabels,
	)
	loadgenMessagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_inbox_service_loadgen_messages_published_total",
			Help: "Total number of seeder events published successfully.",
		},
		loadgenLabels,
	)
	loadgenPublishErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_inbox_service_loadgen_publish_errors_total",
			Help: "Total number of seeder publish failures.",
		},
		loadgenLabels,
	)
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "company_id", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_inbox_service_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// InitMetrics initializes the Prometheus metrics if enabled.
// Call this function during application startup.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// sanitizeTenant ensures the tenant label is valid or returns a default value.
func sanitizeTenant(tenant string) string {
	if tenant == "" {
		return "unknown"
	}
	return tenant
}

// IncRosterLoad increments the roster load counter. result is one of
// "success", "degraded", "empty_state", "cancelled".
func IncRosterLoad(companyID, result string) {
	if !metricsEnabled {
		return
	}
	RosterLoadsTotal.WithLabelValues(sanitizeTenant(companyID), result).Inc()
}

// ObserveRosterLoadDuration observes a full load cycle duration.
func ObserveRosterLoadDuration(companyID string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	RosterLoadDurationSeconds.WithLabelValues(sanitizeTenant(companyID)).Observe(duration.Seconds())
}

// ObserveMergeDuration observes an in-memory merge duration.
func ObserveMergeDuration(companyID string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	RosterMergeDurationSeconds.WithLabelValues(sanitizeTenant(companyID)).Observe(duration.Seconds())
}

// SetRosterSize records the conversation count of the latest snapshot.
func SetRosterSize(companyID string, size int) {
	if !metricsEnabled {
		return
	}
	RosterConversations.WithLabelValues(sanitizeTenant(companyID)).Set(float64(size))
}

// IncRefreshTrigger counts a refresh trigger by source.
func IncRefreshTrigger(companyID, source string) {
	if !metricsEnabled {
		return
	}
	RefreshTriggersTotal.WithLabelValues(sanitizeTenant(companyID), source).Inc()
}

// --- Gateway Metric Helpers ---

// IncGatewayRequest counts one gateway request by endpoint and outcome status.
func IncGatewayRequest(endpoint, status string) {
	if !metricsEnabled {
		return
	}
	gatewayRequestsTotal.WithLabelValues(endpoint, status).Inc()
}

// ObserveGatewayRequestDuration observes one gateway request duration.
func ObserveGatewayRequestDuration(endpoint string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	gatewayRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// IncGatewayRetry counts a retry after a failed gateway attempt.
func IncGatewayRetry(endpoint string) {
	if !metricsEnabled {
		return
	}
	gatewayRetriesTotal.WithLabelValues(endpoint).Inc()
}

// --- Avatar Metric Helpers ---

// IncAvatarCacheCheck counts an avatar cache lookup. result is "hit",
// "negative_hit", "miss" or "expired".
func IncAvatarCacheCheck(companyID, result string) {
	if !metricsEnabled {
		return
	}
	avatarCacheChecksTotal.WithLabelValues(sanitizeTenant(companyID), result).Inc()
}

// IncAvatarFetch counts a profile picture fetch by result ("success",
// "empty", "error").
func IncAvatarFetch(result string) {
	if !metricsEnabled {
		return
	}
	avatarFetchesTotal.WithLabelValues(result).Inc()
}

// SetAvatarQueueLength records the pending avatar fetch count.
func SetAvatarQueueLength(length int) {
	if !metricsEnabled {
		return
	}
	avatarQueueLength.Set(float64(length))
}

// --- Realtime Feed Metric Helpers ---

// IncFeedEventReceived counts one event received from the realtime feed.
func IncFeedEventReceived(eventType, companyID string) {
	if !metricsEnabled {
		return
	}
	feedEventsReceivedTotal.WithLabelValues(eventType, sanitizeTenant(companyID)).Inc()
}

// IncFeedEventFailed counts one realtime feed event that failed processing.
func IncFeedEventFailed(eventType, companyID string) {
	if !metricsEnabled {
		return
	}
	feedEventsFailedTotal.WithLabelValues(eventType, sanitizeTenant(companyID)).Inc()
}

// --- Seeder Metric Helpers ---

// IncLoadgenMessagesAttempted counts a seeder event generation attempt.
func IncLoadgenMessagesAttempted(subject, companyID string) {
	if !metricsEnabled {
		return
	}
	loadgenMessagesAttemptedTotal.WithLabelValues(subject, sanitizeTenant(companyID)).Inc()
}

// IncLoadgenMessagesPublished counts a successful seeder publish.
func IncLoadgenMessagesPublished(subject, companyID string) {
	if !metricsEnabled {
		return
	}
	loadgenMessagesPublishedTotal.WithLabelValues(subject, sanitizeTenant(companyID)).Inc()
}

// IncLoadgenPublishErrors counts a failed seeder publish.
func IncLoadgenPublishErrors(subject, companyID string) {
	if !metricsEnabled {
		return
	}
	loadgenPublishErrorsTotal.WithLabelValues(subject, sanitizeTenant(companyID)).Inc()
}

// --- Database Metric Helpers ---

// ObserveDbOperationDuration observes the duration of a database operation.
func ObserveDbOperationDuration(operation, entity, companyID string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, sanitizeTenant(companyID), status).Observe(duration.Seconds())
}
