// Package server exposes the admin REST surface and the webhook ingress
// on one gin listener. Handlers translate HTTP into bot.Manager calls
// and map the manager's typed errors onto status codes.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/internal/adapters/config"
	"github.com/alexanderselivanov/botfleet/internal/bot"
	"github.com/alexanderselivanov/botfleet/pkg/logger"
	"github.com/alexanderselivanov/botfleet/pkg/models"
)

// ConfigStore persists bot configs across restarts. Writes are
// best-effort; the in-memory fleet is authoritative. A nil store keeps
// the fleet process-local.
type ConfigStore interface {
	Create(ctx context.Context, cfg *models.BotConfig) error
	Update(ctx context.Context, cfg *models.BotConfig) error
	Delete(ctx context.Context, name string) error
}

// Server is the admin HTTP listener.
type Server struct {
	router  *gin.Engine
	manager *bot.Manager
	configs ConfigStore
	cfg     config.ServerConfig
	server  *http.Server
}

// New creates the server and registers all routes.
func New(cfg config.ServerConfig, manager *bot.Manager, configs ConfigStore) *Server {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	s := &Server{
		router:  router,
		manager: manager,
		configs: configs,
		cfg:     cfg,
	}
	s.setupRoutes()

	if cfg.AuthToken == "" {
		logger.Warn("admin API authentication disabled, SERVER_AUTH_TOKEN is empty")
	}
	if cfg.WebhookToken == "" {
		logger.Warn("webhook authentication disabled, WEBHOOK_TOKEN is empty")
	}
	return s
}

// Start blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("admin server listening", zap.String("addr", addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	logger.Info("stopping admin server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin server shutdown failed: %w", err)
	}
	return nil
}

// requestLogger logs one line per request with latency and status.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.Info("http request", fields...)
	}
}
