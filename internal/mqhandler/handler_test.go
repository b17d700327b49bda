package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "interruptd/contracts/mq"
	"interruptd/internal/repository/memory"
	"interruptd/pkg/outbox"
	"interruptd/pkg/util"
)

func envelope(t *testing.T, key string, payload interface{}) (string, json.RawMessage) {
	t.Helper()
	ev, err := outbox.NewEvent(context.Background(), mqcontracts.AggregatePattern, "p", key, payload,
		time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return ev.EventID, ev.Payload
}

func TestActivityHandler_RecordsOnce(t *testing.T) {
	store := memory.New()
	h := NewActivityHandler(store, zap.NewNop())
	ctx := context.Background()

	eventID, body := envelope(t, mqcontracts.RoutingDayLogged, mqcontracts.DayLoggedPayload{
		UserID: 7, PatternID: "pat-1", Date: "2025-03-12",
	})

	require.NoError(t, h.Handle(ctx, mqcontracts.RoutingDayLogged, body))
	require.NoError(t, h.Handle(ctx, mqcontracts.RoutingDayLogged, body))

	got, err := store.ListActivity(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, eventID, got[0].EventID)
	assert.Equal(t, mqcontracts.RoutingDayLogged, got[0].RoutingKey)
	require.NotNil(t, got[0].PatternID)
	assert.Equal(t, "pat-1", *got[0].PatternID)
	assert.True(t, got[0].OccurredAt.Equal(time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)))
	assert.JSONEq(t, `{"user_id":7,"pattern_id":"pat-1","date":"2025-03-12"}`, string(got[0].Payload))
}

func TestActivityHandler_SubscriptionEventHasNoPattern(t *testing.T) {
	store := memory.New()
	h := NewActivityHandler(store, zap.NewNop())

	_, body := envelope(t, mqcontracts.RoutingSubscriptionChanged, mqcontracts.SubscriptionChangedPayload{
		UserID: 3, Plan: "PRO", Status: "ACTIVE",
	})
	require.NoError(t, h.Handle(context.Background(), mqcontracts.RoutingSubscriptionChanged, body))

	got, err := store.ListActivity(context.Background(), 3, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].PatternID)
}

func TestActivityHandler_RejectsBadMessages(t *testing.T) {
	h := NewActivityHandler(memory.New(), zap.NewNop())
	ctx := context.Background()

	err := h.Handle(ctx, "day.logged", json.RawMessage(`{not json`))
	require.Error(t, err)
	retryable, errType := util.IsRetryableError(err)
	assert.False(t, retryable)
	assert.Equal(t, "json_decode_error", errType)

	_, body := envelope(t, "day.logged", map[string]string{"date": "2025-03-12"})
	err = h.Handle(ctx, "day.logged", body)
	assert.ErrorIs(t, err, errMissingIdentity)
}

type fakeInvalidator struct {
	calls []string
	err   error
}

func (f *fakeInvalidator) Invalidate(_ context.Context, patternID string) (int, error) {
	f.calls = append(f.calls, patternID)
	return 2, f.err
}

func TestInsightInvalidationHandler(t *testing.T) {
	inv := &fakeInvalidator{}
	h := NewInsightInvalidationHandler(inv, zap.NewNop())
	ctx := context.Background()

	_, body := envelope(t, mqcontracts.RoutingDayCleared, mqcontracts.DayClearedPayload{
		UserID: 1, PatternID: "pat-9", Date: "2025-03-01",
	})
	require.NoError(t, h.Handle(ctx, mqcontracts.RoutingDayCleared, body))
	assert.Equal(t, []string{"pat-9"}, inv.calls)

	_, body = envelope(t, mqcontracts.RoutingUserSignedUp, mqcontracts.UserSignedUpPayload{UserID: 1, Email: "a@b.co"})
	require.NoError(t, h.Handle(ctx, mqcontracts.RoutingUserSignedUp, body))
	assert.Len(t, inv.calls, 1)

	inv.err = errors.New("redis down")
	_, body = envelope(t, mqcontracts.RoutingPatternUpdated, mqcontracts.PatternUpdatedPayload{UserID: 1, PatternID: "pat-9"})
	assert.Error(t, h.Handle(ctx, mqcontracts.RoutingPatternUpdated, body))
}
