package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vox-chat/config"
	"vox-chat/internal/handler"
	"vox-chat/internal/middleware"
	"vox-chat/internal/transport/httpdto"
	"vox-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

// HealthChecker reports whether the persistence backend is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Upload    *handler.UploadHandler
	Preview   *handler.PreviewHandler
	WebSocket *WebSocketHandler

	// UploadLimiter is optional; uploads are unlimited without it.
	UploadLimiter middleware.UploadLimiter
	Health        HealthChecker
	Gatherer      prometheus.Gatherer
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.MaxMultipartMemory = 8 << 20

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) SetupRoutes(h *Handlers) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if h.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := h.Health.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
				return
			}
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	if h.Gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))
	}

	if h.WebSocket != nil {
		s.engine.GET("/ws", h.WebSocket.Handle)
	}

	api := s.engine.Group("/api")
	{
		if h.Upload != nil {
			upload := []gin.HandlerFunc{h.Upload.Upload}
			if h.UploadLimiter != nil {
				upload = append([]gin.HandlerFunc{middleware.UploadRateLimitMiddleware(h.UploadLimiter, s.logger)}, upload...)
			}
			api.POST("/upload", upload...)
			api.GET("/uploads/:name", h.Upload.Serve)
		}
		if h.Preview != nil {
			api.GET("/preview", h.Preview.Get)
		}
	}
}

// Start serves until SIGINT or SIGTERM, then shuts the HTTP server down.
// onShutdown runs after the listener stops accepting requests.
func (s *Server) Start(onShutdown func()) error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if s.logger != nil {
			s.logger.Errorf("Error in starting the server: %s", err)
		}
		return err
	case <-quit:
	}

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if onShutdown != nil {
		onShutdown()
	}
	if err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}

	return nil
}
