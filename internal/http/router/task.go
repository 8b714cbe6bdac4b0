package router

import (
	"github.com/gin-gonic/gin"

	"darwin.app/engine/internal/http/handler"
)

func TaskRouter(router *gin.RouterGroup, handler *handler.TaskHandler) {
	router.GET("", handler.List)
	router.GET("/:id", handler.Get)
	router.PATCH("/:id", handler.UpdateStatus)
	router.POST("/:id/create-issue", handler.CreateIssue)
	router.POST("/:id/fix", handler.Fix)
}
