package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"interruptd/internal/model"
	"interruptd/pkg/logger"
	"interruptd/pkg/util"
)

var errMissingIdentity = errors.New("event carries no event_id or user_id")

type ActivityWriter interface {
	InsertActivity(ctx context.Context, a *model.Activity) (bool, error)
}

// ActivityHandler 将每个领域事件写入 activity_log
type ActivityHandler struct {
	store  ActivityWriter
	logger *zap.Logger
}

func NewActivityHandler(store ActivityWriter, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{store: store, logger: logger}
}

// Handle 按 outbox event_id 幂等写入，重复投递直接 ack
func (h *ActivityHandler) Handle(ctx context.Context, routingKey string, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	env, who, err := decode(raw)
	if err != nil {
		log.Error("Failed to decode event (non-retryable)",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
		return err
	}
	if env.EventID == "" || who.UserID == 0 {
		log.Error("Event rejected",
			zap.String("routing_key", routingKey),
			zap.String("event_id", env.EventID),
		)
		return errMissingIdentity
	}

	occurred := env.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	a := &model.Activity{
		EventID:    env.EventID,
		UserID:     who.UserID,
		RoutingKey: routingKey,
		Payload:    env.Data,
		OccurredAt: occurred,
	}
	if who.PatternID != "" {
		pid := who.PatternID
		a.PatternID = &pid
	}

	inserted, err := h.store.InsertActivity(ctx, a)
	if err != nil {
		retryable, errType := util.IsRetryableError(err)
		log.Error("Failed to insert activity",
			zap.String("event_id", env.EventID),
			zap.Int("user_id", who.UserID),
			zap.String("error_type", errType),
			zap.Bool("retryable", retryable),
			zap.Error(err),
		)
		return err
	}
	if !inserted {
		log.Info("Duplicate event skipped", zap.String("event_id", env.EventID))
		return nil
	}

	log.Debug("Activity recorded",
		zap.String("event_id", env.EventID),
		zap.String("routing_key", routingKey),
		zap.Int("user_id", who.UserID),
	)
	return nil
}
