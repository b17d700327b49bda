package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"interruptd/internal/apperr"
	"interruptd/pkg/logger"
	"interruptd/pkg/util"
)

// Context keys set by the auth middleware.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

const maxBodyBytes = 64 << 10

// getUserID 统一的 userID 读取工具
func getUserID(c *gin.Context) (int, bool) {
	userID, ok := c.Get(ContextUserID)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return 0, false
	}
	id, ok := userID.(int)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user_id"})
		return 0, false
	}
	return id, true
}

// respondError maps err to a status: domain errors keep their message,
// transient failures become 503 and everything else 500.
func respondError(c *gin.Context, base *zap.Logger, op string, err error) {
	log := logger.WithTrace(c.Request.Context(), base)

	if status, ok := apperr.HTTPStatus(err); ok {
		log.Info(op+": rejected", zap.Int("status", status), zap.Error(err))
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	if retryable, kind := util.IsRetryableError(err); retryable {
		log.Warn(op+": transient failure", zap.String("error_type", kind), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, try again"})
		return
	}

	log.Error(op+": failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// bindStrict decodes a JSON body and rejects unknown fields.
func bindStrict(c *gin.Context, out any) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
}
