package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/talentflowlabs/talentflow-core/internal/api/middleware"
	"github.com/talentflowlabs/talentflow-core/internal/config"
	"github.com/talentflowlabs/talentflow-core/internal/jobrun"
	"github.com/talentflowlabs/talentflow-core/internal/notification"
	"github.com/talentflowlabs/talentflow-core/internal/reconcile"
	"github.com/talentflowlabs/talentflow-core/internal/telemetry"
	"github.com/talentflowlabs/talentflow-core/internal/webhook"
)

// Runner is a worker that can be triggered out of band.
type Runner interface {
	Name() string
	RunOnce(ctx context.Context, trigger jobrun.TriggerSource) (*jobrun.Run, error)
}

type Router struct {
	engine   *gin.Engine
	server   *http.Server
	cfg      *config.Config
	receiver *webhook.Receiver
	runners  map[string]Runner
	queue    *notification.Queue
	events   *webhook.EventStore
	reconJob *reconcile.JobStore
	recorder *jobrun.Recorder
	logger   *zap.Logger
}

func NewRouter(
	cfg *config.Config,
	receiver *webhook.Receiver,
	runners []Runner,
	queue *notification.Queue,
	events *webhook.EventStore,
	reconJob *reconcile.JobStore,
	recorder *jobrun.Recorder,
	logger *zap.Logger,
) *Router {
	// Disable GIN default logger
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Add recovery middleware
	r.Use(gin.Recovery())

	// Add custom middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics())
	r.Use(middleware.Logger(logger))

	byName := make(map[string]Runner, len(runners))
	for _, runner := range runners {
		byName[runner.Name()] = runner
	}

	api := &Router{
		engine:   r,
		cfg:      cfg,
		receiver: receiver,
		runners:  byName,
		queue:    queue,
		events:   events,
		reconJob: reconJob,
		recorder: recorder,
		logger:   logger,
	}

	api.RegisterRoutes()
	return api
}

func (r *Router) RegisterRoutes() {
	// Simple health check
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Prometheus metrics endpoint
	r.engine.GET("/metrics", gin.WrapH(telemetry.Handler()))

	// Inbound webhooks. Authentication is the HMAC signature on the body.
	hooks := r.engine.Group("/webhooks")
	{
		hooks.POST("/calendar", r.HandleWebhook(webhook.ProviderCalendar))
		hooks.POST("/ats", r.HandleWebhook(webhook.ProviderATS))
	}

	// Operational surface (protected by WORKER_TRIGGER_TOKEN)
	internal := r.engine.Group("/internal")
	internal.Use(r.triggerAuth())
	{
		internal.POST("/workers/:name/run", r.TriggerWorker)
		internal.GET("/workers/:name/runs", r.ListRuns)
		internal.GET("/queue/stats", r.QueueStats)
		internal.GET("/reconciliation/jobs", r.ListReconciliationJobs)
	}
}

func (r *Router) Run() error {
	r.server = &http.Server{
		Addr:         ":" + r.cfg.Port,
		Handler:      r.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return r.server.ListenAndServe()
}

func (r *Router) triggerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(r.cfg.WorkerTriggerToken)
		if expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "trigger_token_not_configured"})
			return
		}

		provided := strings.TrimSpace(c.GetHeader("X-Trigger-Token"))
		if provided == "" {
			authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				provided = strings.TrimSpace(authHeader[7:])
			}
		}

		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// Shutdown gracefully shuts down the HTTP server
func (r *Router) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}
