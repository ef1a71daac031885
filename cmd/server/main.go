package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-transcriber/api/handlers"
	"github.com/feichai0017/pdf-transcriber/api/routes"
	"github.com/feichai0017/pdf-transcriber/config"
	"github.com/feichai0017/pdf-transcriber/internal/service/document"
	"github.com/feichai0017/pdf-transcriber/pkg/logger"
)

func main() {
	serverCfg := config.GetServerConfig()

	log, err := logger.NewLogger(
		logger.WithLevel(serverCfg.LogLevel),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/app.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	docService, err := document.GetService(ctx, log)
	if err != nil {
		log.Fatal("Failed to get document service", logger.Error(err))
	}
	defer docService.Close()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, handlers.NewHandlers(docService, log), log)

	srv := &http.Server{
		Addr:    serverCfg.Addr,
		Handler: r,
	}

	go func() {
		log.Info("Server starting", logger.String("addr", serverCfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
