package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"interruptd/internal/model"
	"interruptd/internal/service/auth"
)

type AuthService interface {
	Signup(ctx context.Context, in auth.SignupInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (string, *model.User, error)
}

type AuthHandler struct {
	svc    AuthService
	logger *zap.Logger
}

func NewAuthHandler(svc AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// Signup handles POST /auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req auth.SignupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.svc.Signup(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, "Signup", err)
		return
	}

	h.logger.Info("Signup: success", zap.Int("user_id", user.ID))
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	token, user, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		respondError(c, h.logger, "Login", err)
		return
	}

	h.logger.Info("Login: success", zap.Int("user_id", user.ID))
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}
