package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"darwin.app/engine/internal/http/handler"
	"darwin.app/engine/internal/http/handler/webhook"
	"darwin.app/engine/internal/http/middleware"
)

type RouterConfig struct {
	APIKey string
}

type Handlers struct {
	Ingest        *handler.IngestHandler
	Topics        *handler.TopicHandler
	Tasks         *handler.TaskHandler
	Triage        *handler.TriageHandler
	GitHubWebhook *webhook.GitHubWebhookHandler
	GitLabWebhook *webhook.GitLabWebhookHandler
}

func SetupRoutes(router *gin.Engine, h Handlers, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	WebhookRouter(router.Group("/webhooks"), h.GitHubWebhook, h.GitLabWebhook)

	v1 := router.Group("/api/v1", middleware.RequireAPIKey(cfg.APIKey))
	{
		IngestRouter(v1, h.Ingest)
		TopicRouter(v1.Group("/topics"), h.Topics)
		TaskRouter(v1.Group("/tasks"), h.Tasks)
		TriageRouter(v1.Group("/triage"), h.Triage)
	}
}
