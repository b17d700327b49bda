package trace

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type ctxKey struct{}

const (
	// Header carries the trace id on HTTP requests and responses.
	Header = "X-Trace-ID"
	// TraceIDKey is the field name used for trace ids in MQ headers and logs.
	TraceIDKey = "trace_id"

	maxTraceIDLen = 64
)

// GenerateTraceID 生成 32 位十六进制 trace ID
func GenerateTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FromContext 从 context 中获取 trace_id
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	traceID, _ := ctx.Value(ctxKey{}).(string)
	return traceID
}

// WithContext 将 trace_id 添加到 context 中
func WithContext(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// FromHeader 复用客户端传入的 trace_id；缺失或格式不合法时生成新的
func FromHeader(headerValue string) string {
	if valid(headerValue) {
		return headerValue
	}
	return GenerateTraceID()
}

// valid accepts ids made of letters, digits, '-' and '_' so a client cannot
// inject arbitrary text into logs and MQ headers.
func valid(id string) bool {
	if id == "" || len(id) > maxTraceIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
