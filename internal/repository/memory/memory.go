// Package memory is an in-process implementation of the repository
// interfaces. Transactions are serialised by a mutex and roll back on error.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"interruptd/internal/ledger"
	"interruptd/internal/model"
	"interruptd/internal/repository"
)

// Event is an event emitted through Tx.Emit.
type Event struct {
	AggregateType string
	AggregateID   string
	RoutingKey    string
	Payload       json.RawMessage
}

type state struct {
	users         map[int]model.User
	subscriptions map[int]model.Subscription
	patterns      map[string]model.Pattern
	days          map[string]map[string]*string
	activity      map[string]model.Activity
	events        []Event
	nextUserID    int
	seq           int
}

func (s state) clone() state {
	c := state{
		users:         make(map[int]model.User, len(s.users)),
		subscriptions: make(map[int]model.Subscription, len(s.subscriptions)),
		patterns:      make(map[string]model.Pattern, len(s.patterns)),
		days:          make(map[string]map[string]*string, len(s.days)),
		activity:      make(map[string]model.Activity, len(s.activity)),
		events:        append([]Event(nil), s.events...),
		nextUserID:    s.nextUserID,
		seq:           s.seq,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.subscriptions {
		c.subscriptions[k] = v
	}
	for k, v := range s.patterns {
		c.patterns[k] = v
	}
	for k, v := range s.days {
		m := make(map[string]*string, len(v))
		for d, r := range v {
			m[d] = r
		}
		c.days[k] = m
	}
	for k, v := range s.activity {
		c.activity[k] = v
	}
	return c
}

// Store implements the read paths of repository.Store and repository.Tx.
type Store struct {
	mu  sync.Mutex
	st  state
	now func() time.Time
	// FailEmit makes every Emit fail, to exercise rollbacks.
	FailEmit error
}

func New() *Store {
	return &Store{
		st: state{
			users:         map[int]model.User{},
			subscriptions: map[int]model.Subscription{},
			patterns:      map[string]model.Pattern{},
			days:          map[string]map[string]*string{},
			activity:      map[string]model.Activity{},
			nextUserID:    1,
		},
		now: time.Now,
	}
}

// InTx runs fn while holding the store lock; state is restored if fn fails.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&tx{s: s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// AddUser seeds a user with a subscription on plan.
func (s *Store) AddUser(email, plan string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.st.nextUserID
	s.st.nextUserID++
	s.st.users[id] = model.User{ID: id, Email: email, Role: "user", CreatedAt: s.now()}
	s.st.subscriptions[id] = model.Subscription{UserID: id, Plan: plan, Status: model.StatusActive}
	return id
}

// SetCustomer links a Stripe customer id to the user's subscription.
func (s *Store) SetCustomer(userID int, customerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.st.subscriptions[userID]
	sub.StripeCustomerID = &customerID
	s.st.subscriptions[userID] = sub
}

// Events returns the emitted events in order.
func (s *Store) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.st.events...)
}

// RoutingKeys returns the routing keys of the emitted events in order.
func (s *Store) RoutingKeys() []string {
	var keys []string
	for _, e := range s.Events() {
		keys = append(keys, e.RoutingKey)
	}
	return keys
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.st.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) GetSubscription(_ context.Context, userID int) (*model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.st.subscriptions[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sub, nil
}

func (s *Store) ListPatterns(_ context.Context, userID int) ([]model.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Pattern
	for _, p := range s.st.patterns {
		if p.UserID == userID {
			p.DefaultedDays = s.daysOf(p.ID)
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetPattern(_ context.Context, userID int, id string) (*model.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pattern(userID, id)
}

func (s *Store) InsertActivity(_ context.Context, a *model.Activity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.activity[a.EventID]; ok {
		return false, nil
	}
	s.st.seq++
	a.ID = int64(s.st.seq)
	s.st.activity[a.EventID] = *a
	return true, nil
}

func (s *Store) ListActivity(_ context.Context, userID, limit int) ([]model.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Activity
	for _, a := range s.st.activity {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) pattern(userID int, id string) (*model.Pattern, error) {
	p, ok := s.st.patterns[id]
	if !ok || p.UserID != userID {
		return nil, repository.ErrNotFound
	}
	p.DefaultedDays = s.daysOf(id)
	return &p, nil
}

func (s *Store) daysOf(patternID string) []ledger.DeviationDay {
	var out []ledger.DeviationDay
	for d, r := range s.st.days[patternID] {
		out = append(out, ledger.DeviationDay{Date: d, Reason: r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

type tx struct {
	s *Store
}

func (t *tx) CreateUser(_ context.Context, u *model.User) error {
	for _, existing := range t.s.st.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicate
		}
	}
	u.ID = t.s.st.nextUserID
	t.s.st.nextUserID++
	u.CreatedAt = t.s.now()
	t.s.st.users[u.ID] = *u
	return nil
}

func (t *tx) CreateSubscription(_ context.Context, sub *model.Subscription) error {
	sub.UpdatedAt = t.s.now()
	t.s.st.subscriptions[sub.UserID] = *sub
	return nil
}

func (t *tx) LockSubscription(_ context.Context, userID int) (*model.Subscription, error) {
	sub, ok := t.s.st.subscriptions[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sub, nil
}

func (t *tx) LockSubscriptionByCustomer(_ context.Context, customerID string) (*model.Subscription, error) {
	for _, sub := range t.s.st.subscriptions {
		if sub.StripeCustomerID != nil && *sub.StripeCustomerID == customerID {
			sub := sub
			return &sub, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *tx) UpdateSubscription(_ context.Context, sub *model.Subscription) error {
	if _, ok := t.s.st.subscriptions[sub.UserID]; !ok {
		return repository.ErrNotFound
	}
	sub.UpdatedAt = t.s.now()
	t.s.st.subscriptions[sub.UserID] = *sub
	return nil
}

func (t *tx) CountActivePatterns(_ context.Context, userID int) (int, error) {
	n := 0
	for _, p := range t.s.st.patterns {
		if p.UserID == userID && !p.Archived {
			n++
		}
	}
	return n, nil
}

func (t *tx) InsertPattern(_ context.Context, p *model.Pattern) error {
	t.s.st.seq++
	// keep creation order stable even when the clock does not move
	p.CreatedAt = t.s.now().Add(time.Duration(t.s.st.seq) * time.Microsecond)
	stored := *p
	stored.DefaultedDays = nil
	t.s.st.patterns[p.ID] = stored
	return nil
}

func (t *tx) LockPattern(_ context.Context, userID int, id string) (*model.Pattern, error) {
	return t.s.pattern(userID, id)
}

func (t *tx) UpdatePattern(_ context.Context, p *model.Pattern) error {
	existing, ok := t.s.st.patterns[p.ID]
	if !ok || existing.UserID != p.UserID {
		return repository.ErrNotFound
	}
	stored := *p
	stored.DefaultedDays = nil
	t.s.st.patterns[p.ID] = stored
	return nil
}

func (t *tx) UpsertDay(_ context.Context, patternID, date string, reason *string) error {
	m, ok := t.s.st.days[patternID]
	if !ok {
		m = map[string]*string{}
		t.s.st.days[patternID] = m
	}
	m[date] = reason
	return nil
}

func (t *tx) DeleteDay(_ context.Context, patternID, date string) (bool, error) {
	m := t.s.st.days[patternID]
	if _, ok := m[date]; !ok {
		return false, nil
	}
	delete(m, date)
	return true, nil
}

func (t *tx) Emit(_ context.Context, aggregateType, aggregateID, routingKey string, payload any) error {
	if t.s.FailEmit != nil {
		return t.s.FailEmit
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	t.s.st.events = append(t.s.st.events, Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RoutingKey:    routingKey,
		Payload:       raw,
	})
	return nil
}
