package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"interruptd/internal/service/insight"
)

type InsightService interface {
	Analyze(ctx context.Context, userID int, patternID string) (*insight.Insight, error)
	WeeklyReport(ctx context.Context, userID, weeksAgo int, withSummary bool) (*insight.WeeklyReport, error)
	Coach(ctx context.Context, userID int) (*insight.Insight, error)
}

type InsightHandler struct {
	svc    InsightService
	logger *zap.Logger
}

func NewInsightHandler(svc InsightService, logger *zap.Logger) *InsightHandler {
	return &InsightHandler{svc: svc, logger: logger}
}

// AnalyzePattern handles POST /api/patterns/:id/insights
func (h *InsightHandler) AnalyzePattern(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	in, err := h.svc.Analyze(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "AnalyzePattern", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"insights": in.Text,
		"provider": in.Provider,
		"cached":   in.Cached,
		"fallback": in.Fallback,
	})
}

// WeeklyReport handles GET /api/reports/weekly?weeksAgo=0&summary=1
func (h *InsightHandler) WeeklyReport(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	weeksAgo, err := strconv.Atoi(c.DefaultQuery("weeksAgo", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid weeksAgo"})
		return
	}
	withSummary, _ := strconv.ParseBool(c.DefaultQuery("summary", "false"))

	report, err := h.svc.WeeklyReport(c.Request.Context(), userID, weeksAgo, withSummary)
	if err != nil {
		respondError(c, h.logger, "WeeklyReport", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Coach handles POST /api/coach
func (h *InsightHandler) Coach(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	in, err := h.svc.Coach(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, "Coach", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  in.Text,
		"provider": in.Provider,
		"fallback": in.Fallback,
	})
}
