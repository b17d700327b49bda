package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"interruptd/internal/apperr"
	"interruptd/internal/ledger"
	"interruptd/internal/model"
	"interruptd/internal/repository/memory"
	"interruptd/internal/service/pattern"
	"interruptd/pkg/config"
	"interruptd/pkg/util"
)

const secret = "test-secret"

func newService() (*Service, *memory.Store, *pattern.Registry) {
	store := memory.New()
	idx := ledger.NewIndex(2025, 0, time.UTC, nil)
	reg := pattern.NewRegistry(store, idx, zap.NewNop())
	svc := NewService(store, reg, config.JWTConfig{Secret: secret, TTL: time.Hour}, zap.NewNop())
	return svc, store, reg
}

func TestSignup_CreatesAccount(t *testing.T) {
	svc, store, reg := newService()
	ctx := context.Background()

	u, err := svc.Signup(ctx, SignupInput{Email: " Jo@Example.com ", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, "jo@example.com", u.Email)
	assert.NotEqual(t, "password1", u.PasswordHash)

	sub, err := store.GetSubscription(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanFree, sub.Plan)
	assert.Equal(t, model.StatusActive, sub.Status)

	patterns, err := reg.List(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, patterns, 3)

	keys := store.RoutingKeys()
	assert.Equal(t, "user.signed_up", keys[len(keys)-1])
}

func TestSignup_Validation(t *testing.T) {
	svc, _, _ := newService()
	long := strings.Repeat("n", 101)

	tests := []struct {
		name  string
		in    SignupInput
		field string
	}{
		{"bad email", SignupInput{Email: "nope", Password: "password1"}, "email"},
		{"display email", SignupInput{Email: "Jo <jo@example.com>", Password: "password1"}, "email"},
		{"short password", SignupInput{Email: "a@example.com", Password: "short"}, "password"},
		{"long name", SignupInput{Email: "a@example.com", Password: "password1", Name: &long}, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Signup(context.Background(), tt.in)
			var verr *apperr.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	svc, store, _ := newService()
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupInput{Email: "a@example.com", Password: "password1"})
	require.NoError(t, err)
	before := len(store.Events())

	_, err = svc.Signup(ctx, SignupInput{Email: "A@example.com", Password: "password2"})
	var conflict *apperr.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Len(t, store.Events(), before)
}

func TestLogin(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	u, err := svc.Signup(ctx, SignupInput{Email: "a@example.com", Password: "password1"})
	require.NoError(t, err)

	token, got, err := svc.Login(ctx, "A@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	claims, err := util.ParseJWT(token, secret)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, "user", claims.Role)

	_, _, err = svc.Login(ctx, "a@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody@example.com", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
