package pattern

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "interruptd/contracts/mq"
	"interruptd/internal/apperr"
	"interruptd/internal/ledger"
	"interruptd/internal/model"
	"interruptd/internal/repository"
	"interruptd/pkg/logger"
	"interruptd/pkg/metrics"
)

const (
	MaxNameLength        = 80
	MaxDescriptionLength = 280
)

// Store is what the registry needs from persistence.
type Store interface {
	ListPatterns(ctx context.Context, userID int) ([]model.Pattern, error)
	GetPattern(ctx context.Context, userID int, id string) (*model.Pattern, error)
	InTx(ctx context.Context, fn func(tx repository.Tx) error) error
}

// CreateInput holds the fields of a new pattern.
type CreateInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
	Archived    *bool   `json:"archived"`
}

// Registry owns a user's patterns and their day ledgers.
type Registry struct {
	store  Store
	index  *ledger.Index
	logger *zap.Logger
	newID  func() string
}

func NewRegistry(store Store, index *ledger.Index, logger *zap.Logger) *Registry {
	return &Registry{
		store:  store,
		index:  index,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// Index exposes the date index the registry writes against.
func (r *Registry) Index() *ledger.Index { return r.index }

// List returns every pattern of the user, archived ones included.
func (r *Registry) List(ctx context.Context, userID int) ([]model.Pattern, error) {
	return r.store.ListPatterns(ctx, userID)
}

// Get returns a pattern owned by userID.
func (r *Registry) Get(ctx context.Context, userID int, id string) (*model.Pattern, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("pattern", id)
	}
	p, err := r.store.GetPattern(ctx, userID, id)
	if err != nil {
		return nil, mapNotFound(err, id)
	}
	return p, nil
}

// Create adds a pattern unless the plan's active pattern quota is used up.
// The plan read, the count and the insert share one transaction holding the
// subscription row lock, so concurrent creations cannot overshoot the quota.
func (r *Registry) Create(ctx context.Context, userID int, in CreateInput) (*model.Pattern, error) {
	log := logger.ForUser(ctx, r.logger, userID)

	p, err := r.build(userID, in)
	if err != nil {
		metrics.IncrementPatternCreate("invalid")
		return nil, err
	}

	err = r.store.InTx(ctx, func(tx repository.Tx) error {
		sub, err := tx.LockSubscription(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound("subscription", "")
			}
			return err
		}

		if limit, limited := model.ActivePatternLimit(sub.Plan); limited {
			active, err := tx.CountActivePatterns(ctx, userID)
			if err != nil {
				return err
			}
			if active >= limit {
				return &apperr.QuotaExceededError{Plan: sub.Plan, Limit: limit}
			}
		}

		return r.insert(ctx, tx, p, false)
	})
	if err != nil {
		var quota *apperr.QuotaExceededError
		if errors.As(err, &quota) {
			metrics.IncrementPatternCreate("quota_exceeded")
			log.Info("Pattern quota reached", zap.String("plan", quota.Plan))
		} else {
			metrics.IncrementPatternCreate("error")
		}
		return nil, err
	}

	metrics.IncrementPatternCreate("success")
	log.Info("Pattern created",
		zap.String("pattern_id", p.ID),
		zap.String("color", p.Color),
	)
	return p, nil
}

// defaults are the patterns every new account starts with.
var defaults = []CreateInput{
	{Name: "Social Media Scrolling", Description: "Mindless scrolling instead of intentional use", Color: "rose"},
	{Name: "Junk Food", Description: "Reaching for processed snacks on autopilot", Color: "orange"},
	{Name: "Late Night Screen Time", Description: "Screens past the wind-down hour", Color: "violet"},
}

// SeedDefaults inserts the default patterns inside the caller's transaction.
// It skips the quota check: defaults fill exactly the free allowance.
func (r *Registry) SeedDefaults(ctx context.Context, tx repository.Tx, userID int) ([]model.Pattern, error) {
	out := make([]model.Pattern, 0, len(defaults))
	for _, in := range defaults {
		p, err := r.build(userID, in)
		if err != nil {
			return nil, err
		}
		if err := r.insert(ctx, tx, p, true); err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *Registry) build(userID int, in CreateInput) (*model.Pattern, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	desc, err := validateDescription(in.Description)
	if err != nil {
		return nil, err
	}
	if err := validateColor(in.Color); err != nil {
		return nil, err
	}
	return &model.Pattern{
		ID:          r.newID(),
		UserID:      userID,
		Name:        name,
		Description: desc,
		Color:       in.Color,
	}, nil
}

func (r *Registry) insert(ctx context.Context, tx repository.Tx, p *model.Pattern, seeded bool) error {
	if err := tx.InsertPattern(ctx, p); err != nil {
		return err
	}
	return tx.Emit(ctx, mqcontracts.AggregatePattern, p.ID, mqcontracts.RoutingPatternCreated, mqcontracts.PatternCreatedPayload{
		UserID:    p.UserID,
		PatternID: p.ID,
		Name:      p.Name,
		Color:     p.Color,
		Seeded:    seeded,
	})
}

// Update applies a partial update (rename, describe, recolor, archive flag).
func (r *Registry) Update(ctx context.Context, userID int, id string, in UpdateInput) (*model.Pattern, error) {
	var fields []string
	if in.Name != nil {
		name, err := validateName(*in.Name)
		if err != nil {
			return nil, err
		}
		in.Name = &name
		fields = append(fields, "name")
	}
	if in.Description != nil {
		desc, err := validateDescription(*in.Description)
		if err != nil {
			return nil, err
		}
		in.Description = &desc
		fields = append(fields, "description")
	}
	if in.Color != nil {
		if err := validateColor(*in.Color); err != nil {
			return nil, err
		}
		fields = append(fields, "color")
	}
	if in.Archived != nil {
		fields = append(fields, "archived")
	}
	if len(fields) == 0 {
		return nil, apperr.Invalid("body", "no fields to update")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("pattern", id)
	}

	var updated *model.Pattern
	err := r.store.InTx(ctx, func(tx repository.Tx) error {
		p, err := tx.LockPattern(ctx, userID, id)
		if err != nil {
			return mapNotFound(err, id)
		}
		if in.Name != nil {
			p.Name = *in.Name
		}
		if in.Description != nil {
			p.Description = *in.Description
		}
		if in.Color != nil {
			p.Color = *in.Color
		}
		if in.Archived != nil {
			p.Archived = *in.Archived
		}
		if err := tx.UpdatePattern(ctx, p); err != nil {
			return mapNotFound(err, id)
		}
		updated = p
		return tx.Emit(ctx, mqcontracts.AggregatePattern, p.ID, mqcontracts.RoutingPatternUpdated, mqcontracts.PatternUpdatedPayload{
			UserID:    userID,
			PatternID: p.ID,
			Fields:    fields,
			Archived:  p.Archived,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.ForUser(ctx, r.logger, userID).Info("Pattern updated",
		zap.String("pattern_id", id),
		zap.Strings("fields", fields),
	)
	return updated, nil
}

// Archive hides a pattern; its days are kept.
func (r *Registry) Archive(ctx context.Context, userID int, id string) (*model.Pattern, error) {
	archived := true
	return r.Update(ctx, userID, id, UpdateInput{Archived: &archived})
}

// Unarchive restores an archived pattern.
func (r *Registry) Unarchive(ctx context.Context, userID int, id string) (*model.Pattern, error) {
	archived := false
	return r.Update(ctx, userID, id, UpdateInput{Archived: &archived})
}

// LogDay records date as a deviation day. Only today is writable.
func (r *Registry) LogDay(ctx context.Context, userID int, id, date string, reason *string) error {
	err := r.logDay(ctx, userID, id, date, reason)
	metrics.IncrementDayMutation("log", outcome(err))
	return err
}

func (r *Registry) logDay(ctx context.Context, userID int, id, date string, reason *string) error {
	if err := r.index.CheckWritable(date); err != nil {
		return err
	}
	normalized, err := ledger.NormalizeReason(reason)
	if err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NotFound("pattern", id)
	}

	return r.store.InTx(ctx, func(tx repository.Tx) error {
		p, err := tx.LockPattern(ctx, userID, id)
		if err != nil {
			return mapNotFound(err, id)
		}
		// validate against the ledger before touching storage
		if err := p.Ledger().UpsertToday(r.index, date, normalized); err != nil {
			return err
		}
		if err := tx.UpsertDay(ctx, id, date, normalized); err != nil {
			return err
		}
		return tx.Emit(ctx, mqcontracts.AggregatePattern, id, mqcontracts.RoutingDayLogged, mqcontracts.DayLoggedPayload{
			UserID:    userID,
			PatternID: id,
			Date:      date,
			Reason:    normalized,
		})
	})
}

// ClearDay removes date from the ledger. Only today is writable; clearing
// a date that was never logged is not an error.
func (r *Registry) ClearDay(ctx context.Context, userID int, id, date string) error {
	err := r.clearDay(ctx, userID, id, date)
	metrics.IncrementDayMutation("clear", outcome(err))
	return err
}

func (r *Registry) clearDay(ctx context.Context, userID int, id, date string) error {
	if err := r.index.CheckWritable(date); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NotFound("pattern", id)
	}

	return r.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.LockPattern(ctx, userID, id); err != nil {
			return mapNotFound(err, id)
		}
		removed, err := tx.DeleteDay(ctx, id, date)
		if err != nil || !removed {
			return err
		}
		return tx.Emit(ctx, mqcontracts.AggregatePattern, id, mqcontracts.RoutingDayCleared, mqcontracts.DayClearedPayload{
			UserID:    userID,
			PatternID: id,
			Date:      date,
		})
	})
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < 1 || n > MaxNameLength {
		return "", apperr.Invalid("name", "must be 1-%d characters", MaxNameLength)
	}
	return name, nil
}

func validateDescription(desc string) (string, error) {
	desc = strings.TrimSpace(desc)
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return "", apperr.Invalid("description", "must be at most %d characters", MaxDescriptionLength)
	}
	return desc, nil
}

func validateColor(color string) error {
	if !model.ValidColor(color) {
		return apperr.Invalid("color", "must be one of %s", strings.Join(model.Palette, ", "))
	}
	return nil
}

func mapNotFound(err error, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("pattern", id)
	}
	return err
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if _, ok := apperr.HTTPStatus(err); ok {
		return "rejected"
	}
	return "error"
}
