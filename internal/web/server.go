// Package web serves the live annotated stream, pipeline status and run
// history over HTTP.
package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Kabilash01/cricket-ai/internal/config"
	"github.com/Kabilash01/cricket-ai/internal/display"
	"github.com/Kabilash01/cricket-ai/internal/health"
	"github.com/Kabilash01/cricket-ai/internal/history"
	"github.com/Kabilash01/cricket-ai/internal/logger"
	"github.com/Kabilash01/cricket-ai/internal/pipeline"
	"github.com/Kabilash01/cricket-ai/internal/service"
)

//go:embed static/*
var staticFiles embed.FS

// StatusProvider reports the pipeline's state
type StatusProvider interface {
	Status() pipeline.Status
}

// FrameHub publishes annotated frames and accepts stop requests
type FrameHub interface {
	Latest() (display.Frame, error)
	Subscribe() *display.Subscription
	Unsubscribe(sub *display.Subscription)
	Subscribers() int
	Cancel()
}

// RunHistory lists past runs
type RunHistory interface {
	ListRuns(ctx context.Context, limit int) ([]pipeline.RunSummary, error)
	ClassCounts(ctx context.Context, runID string) ([]history.ClassCount, error)
}

// HealthReporter aggregates component health checks
type HealthReporter interface {
	Check(ctx context.Context) health.Report
}

// Server represents the web server service
type Server struct {
	*service.ServiceBase
	config     *config.WebConfig
	logger     *logger.Logger
	httpServer *http.Server
	router     *gin.Engine
	pipeline   StatusProvider // Optional
	frames     FrameHub       // Optional
	history    RunHistory     // Optional
	health     HealthReporter // Optional
	version    string
	startTime  time.Time

	mu   sync.RWMutex
	addr string
}

// NewServer creates a new web server service
func NewServer(cfg *config.WebConfig, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	s := &Server{
		ServiceBase: service.NewServiceBase("web-server", log),
		config:      cfg,
		logger:      log,
		router:      router,
		version:     "dev",
		startTime:   time.Now(),
	}
	s.setupRoutes()
	return s
}

// SetVersion sets the application version
func (s *Server) SetVersion(version string) {
	s.version = version
}

// SetDependencies sets the pipeline status provider and frame hub
func (s *Server) SetDependencies(status StatusProvider, frames FrameHub) {
	s.pipeline = status
	s.frames = frames
}

// SetHistory sets the run history store
func (s *Server) SetHistory(h RunHistory) {
	s.history = h
}

// SetHealth sets the health reporter served at /api/health
func (s *Server) SetHealth(h HealthReporter) {
	s.health = h
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listening address once started
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Start starts the web server
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.LogInfo("Web server is disabled")
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	// WriteTimeout and IdleTimeout stay disabled; the MJPEG stream ends with the request context
	s.httpServer = &http.Server{
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
	}

	s.mu.Lock()
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.LogError("Web server error", err, "address", s.Addr())
		}
	}()

	s.LogInfo("Web server started", "address", s.Addr())
	return nil
}

// Stop stops the web server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.LogInfo("Stopping web server")
	return s.httpServer.Shutdown(ctx)
}

// Name returns the service name
func (s *Server) Name() string {
	return "web-server"
}

// setupRoutes sets up all API routes
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/status", s.handleStatus)

		api.GET("/stream", s.handleMJPEGStream)
		api.GET("/frame", s.handleSingleFrame)
		api.POST("/stop", s.handleStop)

		runs := api.Group("/runs")
		{
			runs.GET("", s.handleListRuns)
			runs.GET("/:id/detections", s.handleRunDetections)
		}
	}

	content, err := fs.Sub(staticFiles, "static")
	if err != nil {
		content = staticFiles
	}
	s.router.GET("/", func(c *gin.Context) {
		c.FileFromFS("/", http.FS(content))
	})
	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
}

// ginLogger creates a Gin middleware for logging
func ginLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// corsMiddleware creates a CORS middleware for local network access
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
