package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/contextd/contextd/internal/config"
	"github.com/contextd/contextd/internal/domain/conversation"
	"github.com/contextd/contextd/internal/infrastructure/logger"
	middleware "github.com/contextd/contextd/internal/interfaces/httpserver/middlewares"
	v1 "github.com/contextd/contextd/internal/interfaces/httpserver/routes/v1"
)

type HTTPServer struct {
	engine  *gin.Engine
	v1Route *v1.V1Route
	store   conversation.Store
	config  *config.Config
	server  *http.Server
}

func NewHttpServer(
	v1Route *v1.V1Route,
	store conversation.Store,
	cfg *config.Config,
) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	server := &HTTPServer{
		engine:  gin.New(),
		v1Route: v1Route,
		store:   store,
		config:  cfg,
	}
	server.engine.Use(gin.Recovery())
	server.engine.Use(middleware.RequestID())
	server.engine.Use(middleware.LoggingMiddleware(logger.GetLogger()))
	server.engine.Use(middleware.MetricsMiddleware())
	server.engine.Use(middleware.CORSMiddleware())

	server.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness proves the storage backend answers, not just that the
	// process is up.
	server.engine.GET("/readyz", func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, err := server.store.ListSoftDeletedBefore(ctx, time.Time{}, 1); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "storage unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	return server
}

// Run serves until the context is canceled, then shuts down gracefully.
func (httpServer *HTTPServer) Run(ctx context.Context) error {
	httpServer.v1Route.RegisterRouter(httpServer.engine)

	httpServer.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", httpServer.config.HTTPPort),
		Handler:           httpServer.engine,
		ReadHeaderTimeout: httpServer.config.HTTPTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpServer.config.HTTPTimeout)
		defer cancel()
		return httpServer.server.Shutdown(shutdownCtx)
	}
}
