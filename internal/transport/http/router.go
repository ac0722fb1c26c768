package http

import (
	"context"
	"net/http"
	"time"

	"github.com/astro-web3/ai-virtual-assistant/internal/app/startup"
	"github.com/astro-web3/ai-virtual-assistant/internal/config"
	"github.com/astro-web3/ai-virtual-assistant/internal/transport/http/handler"
	"github.com/astro-web3/ai-virtual-assistant/pkg/logger"
	"github.com/astro-web3/ai-virtual-assistant/pkg/metrics"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const readyzPingTimeout = 2 * time.Second

// StartupState reports the progress of the post-start sync for /readyz.
type StartupState interface {
	Done() bool
	Report() startup.Report
}

// Pinger checks a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Routes struct {
	Auth       *Handler
	Inventory  *handler.InventoryHandler
	Assistants *handler.AssistantHandler
	Startup    StartupState
	Database   Pinger
}

func NewRouter(routes Routes, cfg *config.Config) *gin.Engine {
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	if cfg.Observability.TraceEnabled {
		router.Use(otelgin.Middleware(serviceName))
	}
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware())
	if cfg.Observability.MetricsEnabled {
		router.Use(metricsMiddleware())
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	router.Use(corsMiddleware(cfg.CORS.AllowedOrigins))

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/readyz", readyz(routes.Startup, routes.Database))

	router.POST("/validate", routes.Auth.Validate)
	router.POST("/validate/", routes.Auth.Validate)
	router.POST("/validate/test", routes.Auth.SelfTest)

	api := router.Group("/api")
	api.GET("/users/me", routes.Auth.CurrentUser)
	api.GET("/mcp_servers", routes.Inventory.ListMCPServers)
	api.GET("/model_servers", routes.Inventory.ListModelServers)
	api.GET("/knowledge_bases", routes.Inventory.ListKnowledgeBases)
	api.POST("/virtual_assistants/:id/sessions", routes.Assistants.CreateSession)
	api.POST("/virtual_assistants/:id/sessions/:session_id/turn", routes.Assistants.Turn)

	return router
}

func readyz(state StartupState, db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if state == nil || !state.Done() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
			return
		}
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), readyzPingTimeout)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check: database unreachable", logger.Err(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
				return
			}
		}
		report := state.Report()
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"synced":       report.Ready,
			"failed_syncs": report.Failed,
		})
	}
}
