package router

import (
	"github.com/gin-gonic/gin"

	"darwin.app/engine/internal/http/handler"
)

func TriageRouter(router *gin.RouterGroup, handler *handler.TriageHandler) {
	router.GET("", handler.List)
	router.POST("/resolve", handler.Resolve)
}
