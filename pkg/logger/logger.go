package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"interruptd/pkg/trace"
)

// NewLogger 创建 JSON 格式的生产 logger，level 为空或非法时使用 info
func NewLogger(level ...string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	// 关闭采样，outbox/consumer 的重试日志不能丢
	cfg.Sampling = nil

	if len(level) > 0 && level[0] != "" {
		if lvl, err := zapcore.ParseLevel(level[0]); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return l
}

// WithTrace 从 context 中提取 trace_id 并添加到 logger
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if traceID := trace.FromContext(ctx); traceID != "" {
		return logger.With(zap.String(trace.TraceIDKey, traceID))
	}
	return logger
}

// ForUser 在 trace_id 之外附加 user_id，供按用户排查
func ForUser(ctx context.Context, logger *zap.Logger, userID int) *zap.Logger {
	return WithTrace(ctx, logger).With(zap.Int("user_id", userID))
}
