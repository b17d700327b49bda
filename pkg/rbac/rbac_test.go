package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role       string
		permission string
		want       bool
	}{
		{RoleUser, PermissionLogDay, true},
		{RoleUser, PermissionReplayOutbox, false},
		{RoleAdmin, PermissionReplayOutbox, true},
		{"guest", PermissionReadPattern, false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.permission, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.role, tt.permission))
		})
	}
}

func TestCheckPermission(t *testing.T) {
	assert.NoError(t, CheckPermission(1, RoleAdmin, PermissionChangeAnyPlan))

	err := CheckPermission(7, RoleUser, PermissionReplayOutbox)
	var denied *PermissionDeniedError
	assert.True(t, errors.As(err, &denied))
	assert.Equal(t, 7, denied.UserID)
	assert.Equal(t, PermissionReplayOutbox, denied.Permission)
}

func TestNormalizeRole(t *testing.T) {
	assert.Equal(t, RoleAdmin, NormalizeRole("admin"))
	assert.Equal(t, RoleUser, NormalizeRole(""))
	assert.Equal(t, RoleUser, NormalizeRole("root"))
}
