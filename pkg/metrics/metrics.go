package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	AutomationEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_events_total",
			Help: "Total number of events handled by the automation engine (count)",
		},
		[]string{"outcome"},
	)

	AutomationRuleRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_rule_runs_total",
			Help: "Total number of rule runs recorded, by status and skip reason (count)",
		},
		[]string{"status", "reason"},
	)

	AutomationRulesInvalidTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_rules_invalid_total",
			Help: "Total number of rules rejected during normalization (count)",
		},
		[]string{"part"},
	)

	AutomationActionsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_actions_enqueued_total",
			Help: "Total number of outbox entries written, by action type (count)",
		},
		[]string{"action_type"},
	)

	AutomationProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "automation_processing_duration_ms",
			Help:    "Processing duration of one event through the automation engine in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"outcome"},
	)

	AutomationDryRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_dry_runs_total",
			Help: "Total number of dry-run rule verdicts, by verdict (count)",
		},
		[]string{"verdict"},
	)

	EntityLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_loads_total",
			Help: "Total number of entity loads, by kind, source and status (count)",
		},
		[]string{"kind", "source", "status"},
	)

	EntityLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entity_load_duration_ms",
			Help:    "Duration of entity loads in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"source"},
	)

	EntityCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_cache_requests_total",
			Help: "Total number of entity cache lookups, by result (count)",
		},
		[]string{"result"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	KafkaReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_read_duration_ms",
			Help:    "Duration of reading messages from Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)
)

func RegisterAutomationMetrics() {
	prometheus.MustRegister(AutomationEventsTotal)
	prometheus.MustRegister(AutomationRuleRunsTotal)
	prometheus.MustRegister(AutomationRulesInvalidTotal)
	prometheus.MustRegister(AutomationActionsEnqueuedTotal)
	prometheus.MustRegister(AutomationProcessingDuration)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
}

func RegisterEntityMetrics() {
	prometheus.MustRegister(EntityLoadsTotal)
	prometheus.MustRegister(EntityLoadDuration)
	prometheus.MustRegister(EntityCacheRequestsTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaMessageSizeBytes)
	prometheus.MustRegister(KafkaConsumerLag)
	prometheus.MustRegister(KafkaReadDuration)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterAPIMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(AutomationDryRunsTotal)
}

func ObserveAutomationDuration(duration time.Duration, outcome string) {
	AutomationProcessingDuration.WithLabelValues(outcome).Observe(float64(duration.Milliseconds()))
}

func IncAutomationEvent(outcome string) {
	AutomationEventsTotal.WithLabelValues(outcome).Inc()
}

func IncRuleRun(status, reason string) {
	AutomationRuleRunsTotal.WithLabelValues(status, reason).Inc()
}

func IncRuleInvalid(part string) {
	AutomationRulesInvalidTotal.WithLabelValues(part).Inc()
}

func AddActionsEnqueued(actionType string, n int) {
	AutomationActionsEnqueuedTotal.WithLabelValues(actionType).Add(float64(n))
}

func IncDryRunVerdict(verdict string) {
	AutomationDryRunsTotal.WithLabelValues(verdict).Inc()
}

func IncEntityLoad(kind, source, status string) {
	EntityLoadsTotal.WithLabelValues(kind, source, status).Inc()
}

func ObserveEntityLoadDuration(source string, duration time.Duration) {
	EntityLoadDuration.WithLabelValues(source).Observe(float64(duration.Milliseconds()))
}

func IncEntityCache(result string) {
	EntityCacheRequestsTotal.WithLabelValues(result).Inc()
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, fmt.Sprintf("%d", partition)).Set(float64(lag))
}

func ObserveKafkaReadDuration(service, topic string, duration time.Duration) {
	KafkaReadDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}
