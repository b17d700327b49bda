package rbac

import "fmt"

// 权限常量
const (
	PermissionReadPattern   = "pattern:read"
	PermissionWritePattern  = "pattern:write"
	PermissionLogDay        = "day:write"
	PermissionRequestAI     = "insight:request"
	PermissionReadBilling   = "subscription:read"
	PermissionReplayOutbox  = "outbox:replay"
	PermissionChangeAnyPlan = "subscription:admin"
)

// 角色常量
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleUser: {
		PermissionReadPattern,
		PermissionWritePattern,
		PermissionLogDay,
		PermissionRequestAI,
		PermissionReadBilling,
	},
	RoleAdmin: {
		PermissionReadPattern,
		PermissionWritePattern,
		PermissionLogDay,
		PermissionRequestAI,
		PermissionReadBilling,
		PermissionReplayOutbox,
		PermissionChangeAnyPlan,
	},
}

// NormalizeRole 未知或空角色按普通用户处理
func NormalizeRole(role string) string {
	if _, ok := rolePermissions[role]; ok {
		return role
	}
	return RoleUser
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查权限（返回错误而不是布尔值，便于处理）
func CheckPermission(userID int, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     int
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("insufficient permissions: role %q lacks %s", e.Role, e.Permission)
}
