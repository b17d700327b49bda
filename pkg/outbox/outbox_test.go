package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"interruptd/pkg/trace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memStore struct {
	mu     sync.Mutex
	events map[int64]*Event
	failed map[int64]int
}

func newMemStore(events ...*Event) *memStore {
	s := &memStore{events: map[int64]*Event{}, failed: map[int64]int{}}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func (s *memStore) ClaimPending(_ context.Context, limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for id := int64(1); id <= int64(len(s.events)) && len(out) < limit; id++ {
		if e, ok := s.events[id]; ok && e.Status == StatusPending {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) GetFailedEvents(_ context.Context, limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for id := int64(1); id <= int64(len(s.events)) && len(out) < limit; id++ {
		if e, ok := s.events[id]; ok && e.Status == StatusFailed {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) GetEventByID(_ context.Context, id int64) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return e, nil
}

func (s *memStore) MarkAsSent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[id].Status = StatusSent
	return nil
}

func (s *memStore) MarkAsFailed(_ context.Context, id int64, maxRetries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id]++
	e := s.events[id]
	e.RetryCount++
	status, _ := NextAttempt(e.RetryCount, maxRetries, time.Now())
	e.Status = status
	return nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	ids  []string
	fail bool
}

func (p *recordingPublisher) PublishMessage(_ context.Context, routingKey, messageID string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.keys = append(p.keys, routingKey)
	p.ids = append(p.ids, messageID)
	return nil
}

func pending(id int64, key string) *Event {
	return &Event{ID: id, EventID: key + "-id", RoutingKey: key, Payload: json.RawMessage(`{}`), Status: StatusPending}
}

func TestDispatcher_ProcessPendingPublishesInOrder(t *testing.T) {
	store := newMemStore(pending(1, "pattern.created"), pending(2, "day.logged"))
	pub := &recordingPublisher{}

	n := NewDispatcher(store, pub, nil).ProcessPending(context.Background())

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"pattern.created", "day.logged"}, pub.keys)
	assert.Equal(t, []string{"pattern.created-id", "day.logged-id"}, pub.ids)
	assert.Equal(t, StatusSent, store.events[1].Status)
	assert.Equal(t, StatusSent, store.events[2].Status)
}

func TestDispatcher_PublishFailureRetriesThenFails(t *testing.T) {
	store := newMemStore(pending(1, "day.logged"))
	pub := &recordingPublisher{fail: true}
	d := NewDispatcher(store, pub, nil).WithMaxRetries(2)

	assert.Zero(t, d.ProcessPending(context.Background()))
	assert.Equal(t, StatusPending, store.events[1].Status)

	assert.Zero(t, d.ProcessPending(context.Background()))
	assert.Equal(t, StatusFailed, store.events[1].Status)
	assert.Equal(t, 2, store.failed[1])
}

func TestDispatcher_StartStopsOnCancel(t *testing.T) {
	store := newMemStore(pending(1, "day.cleared"))
	pub := &recordingPublisher{}
	d := NewDispatcher(store, pub, nil).WithInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.keys) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestReplayService_ReplayFailedEvents(t *testing.T) {
	a := pending(1, "day.logged")
	a.Status = StatusFailed
	b := pending(2, "pattern.updated")
	b.Status = StatusFailed
	c := pending(3, "day.cleared")
	store := newMemStore(a, b, c)
	pub := &recordingPublisher{}

	n, err := NewReplayService(store, pub, nil).ReplayFailedEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, StatusSent, store.events[1].Status)
	assert.Equal(t, StatusSent, store.events[2].Status)
	assert.Equal(t, StatusPending, store.events[3].Status)
}

func TestReplayService_UnknownEvent(t *testing.T) {
	err := NewReplayService(newMemStore(), &recordingPublisher{}, nil).ReplayEvent(context.Background(), 42)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestNewEvent_BuildsEnvelope(t *testing.T) {
	ctx := trace.WithContext(context.Background(), "abc123")
	now := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

	e, err := NewEvent(ctx, "pattern", "p-1", "day.logged", map[string]string{"date": "2025-03-04"}, now)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, e.Status)
	assert.Equal(t, "p-1", e.AggregateID)

	var env Envelope
	require.NoError(t, json.Unmarshal(e.Payload, &env))
	assert.Equal(t, e.EventID, env.EventID)
	assert.Equal(t, "day.logged", env.RoutingKey)
	assert.Equal(t, "abc123", env.TraceID)
	assert.True(t, now.Equal(env.OccurredAt))
	assert.JSONEq(t, `{"date":"2025-03-04"}`, string(env.Data))
}

func TestNextAttempt(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	status, next := NextAttempt(1, 5, now)
	assert.Equal(t, StatusPending, status)
	require.NotNil(t, next)
	assert.Equal(t, now.Add(2*time.Second), *next)

	_, next = NextAttempt(3, 5, now)
	require.NotNil(t, next)
	assert.Equal(t, now.Add(8*time.Second), *next)

	status, next = NextAttempt(5, 5, now)
	assert.Equal(t, StatusFailed, status)
	assert.Nil(t, next)
}

func TestBackoff_Capped(t *testing.T) {
	assert.Equal(t, 2*time.Second, Backoff(0))
	assert.Equal(t, 256*time.Second, Backoff(8))
	assert.Equal(t, 5*time.Minute, Backoff(9))
	assert.Equal(t, 5*time.Minute, Backoff(40))
}
