package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/feichai0017/pdf-transcriber/api/handlers"
	"github.com/feichai0017/pdf-transcriber/api/middleware"
	"github.com/feichai0017/pdf-transcriber/internal/metrics"
	"github.com/feichai0017/pdf-transcriber/pkg/logger"
)

func SetupRoutes(r *gin.Engine, h *handlers.Handlers, log logger.Logger) {
	metrics.Register()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/health", h.Document.Health)

	docs := v1.Group("/documents")
	{
		docs.POST("/transcribe", h.Document.Transcribe)
		docs.POST("/process", h.Document.ProcessDocument)
		docs.POST("/batch", h.Document.ProcessBatch)
		docs.GET("/status/:taskId", h.Document.GetStatus)
		docs.GET("/download/:taskId", h.Document.DownloadResult)
		docs.GET("/transcript/:taskId", h.Document.GetTranscript)
		docs.DELETE("/task/:taskId", h.Document.CancelTask)
	}
}
