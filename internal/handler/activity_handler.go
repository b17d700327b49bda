package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"interruptd/internal/model"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

type ActivityReader interface {
	ListActivity(ctx context.Context, userID, limit int) ([]model.Activity, error)
}

type ActivityHandler struct {
	reader ActivityReader
	logger *zap.Logger
}

func NewActivityHandler(reader ActivityReader, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{reader: reader, logger: logger}
}

// ListActivity handles GET /api/activity?limit=50
func (h *ActivityHandler) ListActivity(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultActivityLimit)))
	if err != nil || limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}

	items, err := h.reader.ListActivity(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, h.logger, "ListActivity", err)
		return
	}
	if items == nil {
		items = []model.Activity{}
	}
	c.JSON(http.StatusOK, gin.H{"activity": items})
}
