package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(42, "user", "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, 42, claims.UserID)
	assert.Equal(t, "user", claims.Role)

	_, err = ParseJWT(token, "other-secret")
	assert.Error(t, err)
}

func TestGenerateJWT_DefaultTTL(t *testing.T) {
	token, err := GenerateJWT(1, "user", "secret", -time.Minute)
	require.NoError(t, err)

	// negative ttl falls back to the default lifetime
	_, err = ParseJWT(token, "secret")
	assert.NoError(t, err)
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		r, _ := http.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, ExtractToken(r), tt.header)
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword("correct horse", hash))
	assert.False(t, CheckPassword("wrong horse", hash))
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"nil", nil, false, ""},
		{"no rows", fmt.Errorf("find: %w", pgx.ErrNoRows), false, "not_found"},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false, "duplicate_key"},
		{"serialization", &pgconn.PgError{Code: "40001"}, true, "db_serialization_error"},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true, "db_connection_error"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"provider", fmt.Errorf("call: %w", ErrProviderUnavailable), true, "provider_unavailable"},
		{"redis nil", fmt.Errorf("get: %w", redis.Nil), false, "cache_miss"},
		{"redis closed", redis.ErrClosed, true, "redis_unavailable"},
		{"amqp closed", fmt.Errorf("publish: %w", amqp091.ErrClosed), true, "mq_closed"},
		{"amqp precondition", &amqp091.Error{Code: 406, Reason: "PRECONDITION_FAILED", Recover: false}, false, "mq_error"},
		{"url", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("refused")}, true, "network_error"},
		{"unknown", errors.New("boom"), false, "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, errType := IsRetryableError(tt.err)
			assert.Equal(t, tt.retryable, retryable)
			assert.Equal(t, tt.errType, errType)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(1, 3, true))
	assert.False(t, ShouldRetry(4, 3, true))
	assert.False(t, ShouldRetry(1, 3, false))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "dedup:stripe:evt_1", FormatDedupKey("stripe", "evt_1"))
	assert.Equal(t, "retry:activity.q:42", FormatRetryKey("activity.q", "42"))
}
