package router

import (
	"github.com/gin-gonic/gin"

	"darwin.app/engine/internal/http/handler"
)

func TopicRouter(router *gin.RouterGroup, handler *handler.TopicHandler) {
	router.GET("", handler.List)
	router.GET("/:id", handler.Get)
}
