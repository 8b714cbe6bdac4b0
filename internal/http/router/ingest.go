package router

import (
	"github.com/gin-gonic/gin"

	"darwin.app/engine/internal/http/handler"
)

func IngestRouter(router *gin.RouterGroup, handler *handler.IngestHandler) {
	router.POST("/ingest", handler.Ingest)
}
