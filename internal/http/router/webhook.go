package router

import (
	"github.com/gin-gonic/gin"

	"darwin.app/engine/internal/http/handler/webhook"
)

// WebhookRouter mounts the host webhooks. They authenticate with their own
// signatures rather than the API key.
func WebhookRouter(router *gin.RouterGroup, github *webhook.GitHubWebhookHandler, gitlab *webhook.GitLabWebhookHandler) {
	router.POST("/github", github.HandleEvent)
	router.POST("/gitlab", gitlab.HandleEvent)
}
