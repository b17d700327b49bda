package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"interruptd/pkg/logger"
)

type Invalidator interface {
	Invalidate(ctx context.Context, patternID string) (int, error)
}

// InsightInvalidationHandler drops cached insights of a pattern whose ledger
// or metadata changed.
type InsightInvalidationHandler struct {
	insights Invalidator
	logger   *zap.Logger
}

func NewInsightInvalidationHandler(insights Invalidator, logger *zap.Logger) *InsightInvalidationHandler {
	return &InsightInvalidationHandler{insights: insights, logger: logger}
}

func (h *InsightInvalidationHandler) Handle(ctx context.Context, routingKey string, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	_, who, err := decode(raw)
	if err != nil {
		log.Error("Failed to decode event (non-retryable)",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
		return err
	}
	if who.PatternID == "" {
		return nil
	}

	n, err := h.insights.Invalidate(ctx, who.PatternID)
	if err != nil {
		log.Warn("Insight invalidation failed",
			zap.String("pattern_id", who.PatternID),
			zap.Error(err),
		)
		return err
	}
	if n > 0 {
		log.Info("Insight cache invalidated",
			zap.String("routing_key", routingKey),
			zap.String("pattern_id", who.PatternID),
			zap.Int("keys", n),
		)
	}
	return nil
}
