package observer

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricsEnabled = true

var (
	eventProcessingLabels = []string{"event_type", "company_id", "consumer_type"}
	eventActionLabels     = []string{"event_type", "company_id", "consumer_type", "action", "error_type"}

	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_hub_events_received_total",
			Help: "Events received from NATS, labeled by consumer type.",
		},
		eventProcessingLabels,
	)
	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_hub_events_processed_total",
			Help: "Events processed and acknowledged.",
		},
		eventProcessingLabels,
	)
	EventsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_hub_events_failed_total",
			Help: "Events that failed processing (nak, dlq or panic).",
		},
		eventProcessingLabels,
	)
	EventProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "integration_hub_event_processing_duration_seconds",
			Help:    "Time from receipt to ack/nak of one event.",
			Buckets: prometheus.DefBuckets,
		},
		eventProcessingLabels,
	)
	EventRoutingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "integration_hub_event_routing_duration_seconds",
			Help:    "Time spent inside the event handler.",
			Buckets: prometheus.DefBuckets,
		},
		eventProcessingLabels,
	)
	EventProcessingActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_hub_event_processing_actions_total",
			Help: "Ack/nak/dlq decisions taken for events.",
		},
		eventActionLabels,
	)
)

// Hub domain metrics.
var (
	WebhooksReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_hub_webhooks_received_total",
			Help: "Webhook deliveries by channel and result.",
		},
		[]string{"channel", "result"},
	)
	MessagesRoutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_hub_messages_routed_total",
			Help: "Routing decisions by reason.",
		},
		[]string{"company_id", "reason"},
	)
	LeadsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_hub_leads_created_total",
			Help: "Leads created by funnel.",
		},
		[]string{"company_id", "lead_type"},
	)
	DuplicatesPreventedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_hub_duplicates_prevented_total",
			Help: "Duplicate leads prevented, by the stage that caught them (lookup or insert).",
		},
		[]string{"company_id", "stage"},
	)
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_hub_assignments_total",
			Help: "Assignee resolution by strategy and result.",
		},
		[]string{"strategy", "result"},
	)
	UsageCounterFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_hub_usage_counter_failures_total",
			Help: "Usage counter increments that failed and were swallowed.",
		},
		[]string{"counter"},
	)
)

var (
	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "integration_hub_db_operation_duration_seconds",
			Help:    "Database operation duration.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "entity", "company_id", "status"},
	)
)

var (
	reprocessTasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_hub_reprocess_tasks_submitted_total",
			Help: "Pending messages submitted to the reprocess pool.",
		},
		[]string{"company_id"},
	)
	reprocessTasksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_hub_reprocess_tasks_processed_total",
			Help: "Reprocess tasks finished, by status.",
		},
		[]string{"company_id", "status"},
	)
	reprocessDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "integration_hub_reprocess_duration_seconds",
			Help:    "Duration of one reprocess task.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"company_id"},
	)
	reprocessRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "integration_hub_reprocess_workers_running",
		Help: "Reprocess pool workers currently running.",
	})
)

// InitMetrics toggles collection. Collectors are registered by promauto
// regardless; disabled helpers simply do nothing.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

func sanitizeTenant(tenant string) string {
	if tenant == "" {
		return "unknown"
	}
	return tenant
}

func labelOrUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func IncEventsReceived(eventType, tenant, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsReceivedTotal.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Inc()
}

func IncEventsProcessed(eventType, tenant, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsProcessedTotal.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Inc()
}

func IncEventsFailed(eventType, tenant, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsFailedTotal.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Inc()
}

func ObserveEventProcessingDuration(eventType, tenant, consumerType string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	EventProcessingDurationSeconds.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Observe(duration.Seconds())
}

func ObserveEventRoutingDuration(eventType, tenant, consumerType string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	EventRoutingDurationSeconds.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Observe(duration.Seconds())
}

func IncEventProcessingAction(eventType, tenant, consumerType, action, errorType string) {
	if !metricsEnabled {
		return
	}
	EventProcessingActionsTotal.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType, action, SanitizeErrorType(errorType)).Inc()
}

// IncWebhookReceived records one webhook delivery; result is "stored",
// "rejected" or "error".
func IncWebhookReceived(channel, result string) {
	if !metricsEnabled {
		return
	}
	WebhooksReceivedTotal.WithLabelValues(labelOrUnknown(channel), result).Inc()
}

func IncMessageRouted(companyID, reason string) {
	if !metricsEnabled {
		return
	}
	MessagesRoutedTotal.WithLabelValues(sanitizeTenant(companyID), reason).Inc()
}

func IncLeadCreated(companyID, leadType string) {
	if !metricsEnabled {
		return
	}
	LeadsCreatedTotal.WithLabelValues(sanitizeTenant(companyID), leadType).Inc()
}

func IncDuplicatePrevented(companyID, stage string) {
	if !metricsEnabled {
		return
	}
	DuplicatesPreventedTotal.WithLabelValues(sanitizeTenant(companyID), stage).Inc()
}

func IncAssignment(strategy, result string) {
	if !metricsEnabled {
		return
	}
	AssignmentsTotal.WithLabelValues(labelOrUnknown(strategy), result).Inc()
}

func IncUsageCounterFailure(counter string) {
	if !metricsEnabled {
		return
	}
	UsageCounterFailuresTotal.WithLabelValues(counter).Inc()
}

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

func IncReprocessTasksSubmitted(companyID string) {
	if !metricsEnabled {
		return
	}
	reprocessTasksSubmittedTotal.WithLabelValues(sanitizeTenant(companyID)).Inc()
}

func IncReprocessTasksProcessed(companyID, status string) {
	if !metricsEnabled {
		return
	}
	reprocessTasksProcessedTotal.WithLabelValues(sanitizeTenant(companyID), status).Inc()
}

func ObserveReprocessDuration(companyID string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	reprocessDurationSeconds.WithLabelValues(sanitizeTenant(companyID)).Observe(duration.Seconds())
}

func SetReprocessWorkersRunning(n int) {
	if !metricsEnabled {
		return
	}
	reprocessRunning.Set(float64(n))
}

// SanitizeErrorType buckets an error message into a low-cardinality label.
func SanitizeErrorType(errStr string) string {
	if errStr == "" || errStr == "none" {
		return "none"
	}

	lower := strings.ToLower(errStr)
	switch {
	case strings.Contains(lower, "integration not found"), strings.Contains(lower, "unsupported channel"):
		return "configuration"
	case strings.Contains(lower, "invalid contact"):
		return "invalid_contact"
	case strings.Contains(lower, "database"), strings.Contains(lower, "sql"), strings.Contains(lower, "constraint"), strings.Contains(lower, "connection"):
		return "database"
	case strings.Contains(lower, "validation failed"), strings.Contains(lower, "bad request"), strings.Contains(lower, "invalid"):
		return "validation"
	case strings.Contains(lower, "not found"), strings.Contains(lower, "no rows"):
		return "not_found"
	case strings.Contains(lower, "nats"), strings.Contains(lower, "jetstream"):
		return "nats"
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return "timeout"
	case strings.Contains(lower, "unmarshal"), strings.Contains(lower, "json"):
		return "unmarshal"
	case strings.Contains(lower, "panic"):
		return "panic"
	default:
		return "unknown"
	}
}
