package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// ErrProviderUnavailable is returned by outbound text-generation clients on 5xx / open breaker.
var ErrProviderUnavailable = errors.New("text generation provider unavailable")

// classifier returns ok=false when it does not recognise err.
type classifier func(err error) (retryable bool, errType string, ok bool)

// 顺序敏感：context 先于网络错误，pg 错误码先于 pgconn.SafeToRetry
var classifiers = []classifier{
	classifyDecode,
	classifyContext,
	classifyPostgres,
	classifyRedis,
	classifyAMQP,
	classifyProvider,
	classifyNetwork,
}

// IsRetryableError 判断错误是否值得重试，返回 (是否可重试, 错误类型)。
// 未识别的错误保守处理为不可重试。
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}
	for _, c := range classifiers {
		if retryable, errType, ok := c(err); ok {
			return retryable, errType
		}
	}
	msg := err.Error()
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") {
		return true, "connection_error"
	}
	return false, "unknown_error"
}

// JSON decode errors - 数据格式错误，重试没有意义
func classifyDecode(err error) (bool, string, bool) {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false, "json_decode_error", true
	}
	return false, "", false
}

func classifyContext(err error) (bool, string, bool) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return true, "timeout", true
	case errors.Is(err, context.Canceled):
		return false, "context_canceled", true
	}
	return false, "", false
}

func classifyPostgres(err error) (bool, string, bool) {
	if errors.Is(err, pgx.ErrNoRows) {
		return false, "not_found", true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			// 唯一约束冲突：重复投递，幂等处理
			return false, "duplicate_key", true
		case pgErr.Code == "40001" || pgErr.Code == "40P01":
			return true, "db_serialization_error", true
		case strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P"):
			return true, "db_connection_error", true
		default:
			return false, "db_error", true
		}
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true, "db_connection_error", true
	}
	return false, "", false
}

func classifyRedis(err error) (bool, string, bool) {
	switch {
	case errors.Is(err, redis.Nil):
		return false, "cache_miss", true
	case errors.Is(err, redis.ErrClosed):
		return true, "redis_unavailable", true
	}
	return false, "", false
}

func classifyAMQP(err error) (bool, string, bool) {
	if errors.Is(err, amqp091.ErrClosed) {
		return true, "mq_closed", true
	}
	var amqpErr *amqp091.Error
	if errors.As(err, &amqpErr) {
		return amqpErr.Recover, "mq_error", true
	}
	return false, "", false
}

func classifyProvider(err error) (bool, string, bool) {
	if errors.Is(err, ErrProviderUnavailable) {
		return true, "provider_unavailable", true
	}
	return false, "", false
}

func classifyNetwork(err error) (bool, string, bool) {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout", true
		}
		return true, "network_error", true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout", true
		}
		return true, "network_error", true
	}
	return false, "", false
}

// ShouldRetry 第 attempt 次失败后是否还允许重试
func ShouldRetry(attempt int64, maxRetries int64, isRetryable bool) bool {
	return isRetryable && attempt <= maxRetries
}
