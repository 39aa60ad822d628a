package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unikmhz/npui-sub001/pkg/config"
	"github.com/unikmhz/npui-sub001/pkg/logger"
)

// Server is the ops HTTP server of the sync daemon
type Server struct {
	config  config.WebConfig
	logger  *logger.Logger
	server  *http.Server
	hub     *WebSocketHub
	api     *API
	metrics http.Handler
	addr    string
	mu      sync.RWMutex
}

// ServerOption customizes a Server
type ServerOption func(*Server)

// WithSyncer exposes sync status and the manual trigger
func WithSyncer(s SyncController) ServerOption {
	return func(srv *Server) { srv.api.syncer = s }
}

// WithRunHistory exposes /api/runs
func WithRunHistory(r RunHistory) ServerOption {
	return func(srv *Server) { srv.api.runs = r }
}

// WithMetricsHandler mounts h at /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(srv *Server) { srv.metrics = h }
}

// NewServer creates a new web server instance
func NewServer(cfg config.WebConfig, log *logger.Logger, opts ...ServerOption) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		config: cfg,
		logger: log.WithComponent("web"),
		hub:    NewWebSocketHub(log),
		api:    NewAPI(log, nil, nil),
	}
	s.api.clients = s.hub.GetClientCount
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetSyncer attaches the sync controller after construction, since the
// syncer publishes to this server's hub
func (s *Server) SetSyncer(c SyncController) {
	s.api.syncer = c
}

// Router builds the HTTP routes
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	api.GET("/status", s.api.HandleStatus)
	api.POST("/sync", s.api.HandleSync)
	api.GET("/runs", s.api.HandleRuns)
	api.GET("/runs/:id", s.api.HandleRun)

	r.GET("/ws", gin.WrapH(s.hub.Handler()))

	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
	return r
}

// Start serves HTTP until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Web server is disabled")
		return nil
	}

	go s.hub.Run(ctx)
	s.api.base = ctx

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Listen first to learn the actual address (port 0)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.mu.Lock()
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info("Starting web server", logger.String("address", s.addr))

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

// GetAddr returns the address the server is listening on
func (s *Server) GetAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// GetHub returns the WebSocket hub
func (s *Server) GetHub() *WebSocketHub {
	return s.hub
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "ca-sync",
		"time":    time.Now().Unix(),
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("client_ip", c.ClientIP()),
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			s.logger.Error("HTTP request", fields...)
		case status >= 400:
			s.logger.Warn("HTTP request", fields...)
		default:
			s.logger.Debug("HTTP request", fields...)
		}
	}
}
