package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/Shepherd/backend/internal/api/http"
	"github.com/GriffinCanCode/Shepherd/backend/internal/api/middleware"
	"github.com/GriffinCanCode/Shepherd/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/Shepherd/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/Shepherd/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/Shepherd/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/Shepherd/backend/internal/ws"
)

// Server wraps the dev server's router and its dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	hub      *ws.Hub
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
	registry *prometheus.Registry
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	dev := cfg.DevServer

	tokens := middleware.ParseTokens(dev.Tokens)
	if len(tokens) == 0 {
		return nil, errors.New("devserver: at least one token is required")
	}

	logger.Info("Initializing Shepherd dev server",
		zap.String("host", dev.Host),
		zap.String("port", dev.Port),
		zap.Int("tokens", len(tokens)),
		zap.Duration("chunk_delay", dev.ChunkDelay),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	keepAlive := cfg.Realtime.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	hub := ws.NewHub(tokens, logger.Component("devserver"), metrics, 3*keepAlive)
	handlers := apihttp.NewHandlers(hub, apihttp.Script{}, dev.ChunkDelay, logger.Component("devserver"))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// WebSocket
	router.GET("/ws/:tenantId", hub.HandleConnection)

	rate := middleware.DefaultRateLimitConfig()
	if dev.RequestsPerSecond > 0 {
		rate.RequestsPerSecond = dev.RequestsPerSecond
		rate.Burst = dev.Burst
		logger.Info("Rate limiting enabled",
			zap.Int("rps", rate.RequestsPerSecond),
			zap.Int("burst", rate.Burst),
		)
	}

	api := router.Group("/api")
	api.Use(middleware.KeyedRateLimit(rate, middleware.TenantKey("tenantId")))
	api.Use(middleware.RequireBearer(tokens, "tenantId"))

	api.POST("/stream/:contentKind", handlers.Stream)
	api.POST("/tenants/:tenantId/events", handlers.Publish)
	api.POST("/tenants/:tenantId/disconnect", handlers.Disconnect)
	api.GET("/tenants/:tenantId/connections", handlers.Connections)

	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              net.JoinHostPort(dev.Host, dev.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		hub:      hub,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		registry: registry,
	}, nil
}

// Handler exposes the router, for httptest
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the push hub
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.http.Addr
}

// Run serves until Close is called
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close says going-away to every socket and drains in-flight requests
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	s.hub.Close()
	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("Failed to shut down cleanly", zap.Error(err))
	}

	_ = s.logger.Sync()
	return err
}
