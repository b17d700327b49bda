package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"interruptd/internal/service/billing"
)

type BillingService interface {
	Get(ctx context.Context, userID int) (*billing.View, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (billing.Outcome, error)
}

type BillingHandler struct {
	svc    BillingService
	logger *zap.Logger
}

func NewBillingHandler(svc BillingService, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{svc: svc, logger: logger}
}

// GetSubscription handles GET /api/subscription
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	view, err := h.svc.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, "GetSubscription", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Webhook handles POST /billing/webhook
func (h *BillingHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		badRequest(c, err)
		return
	}

	outcome, err := h.svc.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		respondError(c, h.logger, "Webhook", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": outcome})
}
