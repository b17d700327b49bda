package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"interruptd/internal/handler"
	"interruptd/pkg/otel"
	"interruptd/pkg/rbac"
)

// Pinger reports whether storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connector reports whether a broker connection is up.
type Connector interface {
	IsConnected() bool
}

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth     *handler.AuthHandler
	Patterns *handler.PatternHandler
	Billing  *handler.BillingHandler
	Insights *handler.InsightHandler
	Activity *handler.ActivityHandler
	Admin    *handler.AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

// NewRouter wires routes. publisher may be nil when running without a broker.
func NewRouter(h Handlers, jwtSecret string, db Pinger, publisher Connector, logger *zap.Logger) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())
	r.Use(otel.GinMiddleware())
	r.Use(MetricsMiddleware())
	r.Use(RequestLogger(logger))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		if publisher != nil && !publisher.IsConnected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mq_not_ready"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	r.POST("/auth/signup", h.Auth.Signup)
	r.POST("/auth/login", h.Auth.Login)
	r.POST("/billing/webhook", h.Billing.Webhook)

	// Protected
	api := r.Group("/api")
	api.Use(AuthMiddleware(jwtSecret))
	{
		read := RequirePermission(rbac.PermissionReadPattern)
		write := RequirePermission(rbac.PermissionWritePattern)
		logDay := RequirePermission(rbac.PermissionLogDay)
		ai := RequirePermission(rbac.PermissionRequestAI)

		api.GET("/patterns", read, h.Patterns.ListPatterns)
		api.POST("/patterns", write, h.Patterns.CreatePattern)
		api.GET("/patterns/:id", read, h.Patterns.GetPattern)
		api.PATCH("/patterns/:id", write, h.Patterns.UpdatePattern)
		api.POST("/patterns/:id/archive", write, h.Patterns.ArchivePattern)
		api.POST("/patterns/:id/unarchive", write, h.Patterns.UnarchivePattern)
		api.POST("/patterns/:id/days", logDay, h.Patterns.LogDay)
		api.DELETE("/patterns/:id/days", logDay, h.Patterns.ClearDay)
		api.GET("/patterns/:id/stats", read, h.Patterns.PatternStats)

		api.POST("/patterns/:id/insights", ai, h.Insights.AnalyzePattern)
		api.GET("/reports/weekly", read, h.Insights.WeeklyReport)
		api.POST("/coach", ai, h.Insights.Coach)

		api.GET("/subscription", RequirePermission(rbac.PermissionReadBilling), h.Billing.GetSubscription)
		api.GET("/activity", read, h.Activity.ListActivity)
	}

	admin := r.Group("/admin")
	admin.Use(AuthMiddleware(jwtSecret), RequirePermission(rbac.PermissionReplayOutbox))
	{
		admin.POST("/outbox/replay", h.Admin.ReplayOutboxEvent)
		admin.POST("/outbox/replay-failed", h.Admin.ReplayFailedEvents)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
