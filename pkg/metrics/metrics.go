package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// AI 文本生成调用延迟（毫秒）
	InsightCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insight_call_latency_ms",
			Help:    "Text generation provider call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"provider", "status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"operation"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 偏离日写入计数
	DayMutationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "day_mutation_count",
			Help: "Total number of deviation day writes",
		},
		[]string{"action", "status"}, // action: logged, cleared; status: success, rejected, failed
	)

	// Pattern 创建计数
	PatternCreateCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pattern_create_count",
			Help: "Total number of pattern creation attempts",
		},
		[]string{"status"}, // status: success, quota_exceeded, failed
	)

	// Stripe webhook 事件计数
	WebhookEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_event_count",
			Help: "Total number of billing webhook events",
		},
		[]string{"type", "status"}, // status: applied, duplicate, ignored, failed
	)

	// Insight 缓存命中计数
	InsightCacheCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_cache_count",
			Help: "Insight cache lookups",
		},
		[]string{"result"}, // result: hit, miss
	)

	// 熔断器状态：0 closed, 1 open, 2 half_open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0 closed, 1 open, 2 half_open)",
		},
		[]string{"name"},
	)

	// Outbox 发布计数
	OutboxPublishCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_publish_count",
			Help: "Outbox events published by the dispatcher",
		},
		[]string{"routing_key", "status"}, // status: sent, retry
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordInsightCallLatency 记录 AI 调用延迟
func RecordInsightCallLatency(provider, status string, duration time.Duration) {
	InsightCallLatency.WithLabelValues(provider, status).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery(operation string) {
	SlowQueryCount.WithLabelValues(operation).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementDayMutation 增加偏离日写入计数
func IncrementDayMutation(action, status string) {
	DayMutationCount.WithLabelValues(action, status).Inc()
}

// IncrementPatternCreate 增加 pattern 创建计数
func IncrementPatternCreate(status string) {
	PatternCreateCount.WithLabelValues(status).Inc()
}

// IncrementWebhookEvent 增加 webhook 事件计数
func IncrementWebhookEvent(eventType, status string) {
	WebhookEventCount.WithLabelValues(eventType, status).Inc()
}

// IncrementInsightCache 记录缓存命中或未命中
func IncrementInsightCache(result string) {
	InsightCacheCount.WithLabelValues(result).Inc()
}

// SetCircuitBreakerState 记录熔断器当前状态
func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// IncrementOutboxPublish 增加 outbox 发布计数
func IncrementOutboxPublish(routingKey, status string) {
	OutboxPublishCount.WithLabelValues(routingKey, status).Inc()
}
