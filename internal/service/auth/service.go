package auth

import (
	"context"
	"errors"
	"net/mail"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	mqcontracts "interruptd/contracts/mq"
	"interruptd/internal/apperr"
	"interruptd/internal/model"
	"interruptd/internal/repository"
	"interruptd/pkg/config"
	"interruptd/pkg/logger"
	"interruptd/pkg/rbac"
	"interruptd/pkg/util"
)

const (
	MinPasswordLength = 8
	MaxNameLength     = 100
)

// ErrInvalidCredentials is returned for unknown emails and wrong passwords alike.
var ErrInvalidCredentials = errors.New("invalid email or password")

type Store interface {
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	InTx(ctx context.Context, fn func(tx repository.Tx) error) error
}

// Seeder creates the starter patterns of a new account.
type Seeder interface {
	SeedDefaults(ctx context.Context, tx repository.Tx, userID int) ([]model.Pattern, error)
}

type SignupInput struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name"`
}

type Service struct {
	store  Store
	seeder Seeder
	jwt    config.JWTConfig
	logger *zap.Logger
}

func NewService(store Store, seeder Seeder, jwt config.JWTConfig, logger *zap.Logger) *Service {
	return &Service{store: store, seeder: seeder, jwt: jwt, logger: logger}
}

// Signup creates the user, a free subscription and the default patterns
// in one transaction.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return nil, apperr.Invalid("password", "must be at least %d characters", MinPasswordLength)
	}
	var name *string
	if in.Name != nil {
		n := strings.TrimSpace(*in.Name)
		if utf8.RuneCountInString(n) > MaxNameLength {
			return nil, apperr.Invalid("name", "must be at most %d characters", MaxNameLength)
		}
		if n != "" {
			name = &n
		}
	}

	hash, err := util.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &model.User{Email: email, Name: name, PasswordHash: hash, Role: rbac.RoleUser}
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.CreateUser(ctx, u); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return &apperr.ConflictError{Resource: "user", Reason: "email already registered"}
			}
			return err
		}
		sub := &model.Subscription{UserID: u.ID, Plan: model.PlanFree, Status: model.StatusActive}
		if err := tx.CreateSubscription(ctx, sub); err != nil {
			return err
		}
		if _, err := s.seeder.SeedDefaults(ctx, tx, u.ID); err != nil {
			return err
		}
		return tx.Emit(ctx, mqcontracts.AggregateUser, strconv.Itoa(u.ID), mqcontracts.RoutingUserSignedUp, mqcontracts.UserSignedUpPayload{
			UserID: u.ID,
			Email:  u.Email,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("User signed up", zap.Int("user_id", u.ID))
	return u, nil
}

// Login checks credentials and returns a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if !util.CheckPassword(password, u.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := util.GenerateJWT(u.ID, rbac.NormalizeRole(u.Role), s.jwt.Secret, s.jwt.TTL)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Invalid("email", "must be a valid email address")
	}
	return email, nil
}
