// Package apperr holds the error kinds callers can act on: bad input,
// missing resources, plan quotas and writes against closed dates.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError 输入不合法
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError 资源不存在或不属于当前用户
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// QuotaExceededError 套餐限额已满
type QuotaExceededError struct {
	Plan  string
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("plan %s allows at most %d active patterns", e.Plan, e.Limit)
}

// ImmutableDateError 只有今天可以写入
type ImmutableDateError struct {
	Date  string
	Today string
}

func (e *ImmutableDateError) Error() string {
	return fmt.Sprintf("date %s is not editable (today is %s)", e.Date, e.Today)
}

// ConflictError 唯一性冲突（例如邮箱已注册）
type ConflictError struct {
	Resource string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Reason)
}

// Invalid 构造 ValidationError
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFound 构造 NotFoundError
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// HTTPStatus maps a domain error to its status code. ok is false for
// errors that are not one of the kinds above.
func HTTPStatus(err error) (status int, ok bool) {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		quota      *QuotaExceededError
		immutable  *ImmutableDateError
		conflict   *ConflictError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, true
	case errors.As(err, &notFound):
		return http.StatusNotFound, true
	case errors.As(err, &quota):
		return http.StatusForbidden, true
	case errors.As(err, &immutable):
		return http.StatusConflict, true
	case errors.As(err, &conflict):
		return http.StatusConflict, true
	}
	return 0, false
}
