package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"interruptd/internal/model"
	"interruptd/internal/service/pattern"
)

type PatternService interface {
	List(ctx context.Context, userID int) ([]model.Pattern, error)
	Get(ctx context.Context, userID int, id string) (*model.Pattern, error)
	Create(ctx context.Context, userID int, in pattern.CreateInput) (*model.Pattern, error)
	Update(ctx context.Context, userID int, id string, in pattern.UpdateInput) (*model.Pattern, error)
	Archive(ctx context.Context, userID int, id string) (*model.Pattern, error)
	Unarchive(ctx context.Context, userID int, id string) (*model.Pattern, error)
	LogDay(ctx context.Context, userID int, id, date string, reason *string) error
	ClearDay(ctx context.Context, userID int, id, date string) error
	Stats(ctx context.Context, userID int, id string) (*pattern.Summary, error)
}

type PatternHandler struct {
	svc    PatternService
	logger *zap.Logger
}

func NewPatternHandler(svc PatternService, logger *zap.Logger) *PatternHandler {
	return &PatternHandler{svc: svc, logger: logger}
}

// ListPatterns handles GET /api/patterns
func (h *PatternHandler) ListPatterns(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	patterns, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, "ListPatterns", err)
		return
	}
	if patterns == nil {
		patterns = []model.Pattern{}
	}

	h.logger.Debug("ListPatterns: success",
		zap.Int("user_id", userID),
		zap.Int("pattern_count", len(patterns)),
	)
	c.JSON(http.StatusOK, gin.H{"patterns": patterns})
}

// CreatePattern handles POST /api/patterns
func (h *PatternHandler) CreatePattern(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req pattern.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	p, err := h.svc.Create(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.logger, "CreatePattern", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"pattern": p})
}

// GetPattern handles GET /api/patterns/:id
func (h *PatternHandler) GetPattern(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	p, err := h.svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "GetPattern", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pattern": p})
}

// UpdatePattern handles PATCH /api/patterns/:id
func (h *PatternHandler) UpdatePattern(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req pattern.UpdateInput
	if err := bindStrict(c, &req); err != nil {
		badRequest(c, err)
		return
	}

	p, err := h.svc.Update(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, "UpdatePattern", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pattern": p})
}

// ArchivePattern handles POST /api/patterns/:id/archive
func (h *PatternHandler) ArchivePattern(c *gin.Context) {
	h.toggle(c, "ArchivePattern", h.svc.Archive)
}

// UnarchivePattern handles POST /api/patterns/:id/unarchive
func (h *PatternHandler) UnarchivePattern(c *gin.Context) {
	h.toggle(c, "UnarchivePattern", h.svc.Unarchive)
}

func (h *PatternHandler) toggle(c *gin.Context, op string, fn func(ctx context.Context, userID int, id string) (*model.Pattern, error)) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	p, err := fn(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pattern": p})
}

// LogDay handles POST /api/patterns/:id/days
func (h *PatternHandler) LogDay(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req struct {
		Date   string  `json:"date" binding:"required"`
		Reason *string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.svc.LogDay(c.Request.Context(), userID, c.Param("id"), req.Date, req.Reason); err != nil {
		respondError(c, h.logger, "LogDay", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ClearDay handles DELETE /api/patterns/:id/days
func (h *PatternHandler) ClearDay(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	date := c.Query("date")
	if date == "" {
		var req struct {
			Date string `json:"date" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		date = req.Date
	}

	if err := h.svc.ClearDay(c.Request.Context(), userID, c.Param("id"), date); err != nil {
		respondError(c, h.logger, "ClearDay", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// PatternStats handles GET /api/patterns/:id/stats
func (h *PatternHandler) PatternStats(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	summary, err := h.svc.Stats(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "PatternStats", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
