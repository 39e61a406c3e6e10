package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/hvirtala/bottletag-go/internal/api/middleware"
	"github.com/hvirtala/bottletag-go/internal/conf"
	"github.com/hvirtala/bottletag-go/internal/datastore"
	"github.com/hvirtala/bottletag-go/internal/labels"
	"github.com/hvirtala/bottletag-go/internal/logging"
	"github.com/hvirtala/bottletag-go/internal/observability"
	"github.com/hvirtala/bottletag-go/internal/session"
)

// Server is the main HTTP server for BottleTag. It manages the Echo instance,
// middleware and the API controller's lifecycle.
type Server struct {
	echo     *echo.Echo
	config   *ServerConfig
	settings *conf.Settings
	slogger  *slog.Logger

	dataStore datastore.Interface
	labelSvc  *labels.Service
	sessions  *session.Service
	metrics   *observability.Metrics

	controller *Controller

	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time

	logCloser func() error
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithDataStore sets the datastore for the server.
func WithDataStore(ds datastore.Interface) ServerOption {
	return func(s *Server) {
		s.dataStore = ds
	}
}

// WithLabelService sets the label lifecycle service.
func WithLabelService(svc *labels.Service) ServerOption {
	return func(s *Server) {
		s.labelSvc = svc
	}
}

// WithSessionService sets the measurement session service.
func WithSessionService(svc *session.Service) ServerOption {
	return func(s *Server) {
		s.sessions = svc
	}
}

// WithMetrics sets the shared metrics instance.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// ServerConfigFromSettings creates a ServerConfig from the application settings.
func ServerConfigFromSettings(settings *conf.Settings) *ServerConfig {
	cfg := DefaultServerConfig()
	if settings.Service.Address != "" {
		cfg.ListenAddress = settings.Service.Address
	}
	cfg.Debug = settings.Debug
	return cfg
}

// NewServer creates a new HTTP server with the given settings and options.
func NewServer(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	config := ServerConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:    config,
		settings:  settings,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := s.initLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()

	s.controller = NewController(s.echo, s.dataStore, s.settings, s.labelSvc, s.sessions, s.metrics)

	s.slogger.Info("HTTP server initialized",
		"address", config.ListenAddress,
		"debug", config.Debug,
	)

	return s, nil
}

// initLogger initializes the structured logger for the server.
func (s *Server) initLogger() error {
	level := slog.LevelInfo
	if s.config.Debug {
		level = slog.LevelDebug
	}

	logger, closer, err := logging.NewFileLogger(DefaultLogPath, "server", level)
	if err != nil {
		// Fall back to a discard logger rather than failing startup
		handler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: level})
		s.slogger = slog.New(handler).With("service", "server")
		s.logCloser = func() error { return nil }
		return nil
	}

	s.slogger = logger
	s.logCloser = closer
	return nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware comes first
	s.echo.Use(echomw.Recover())

	s.echo.Use(mw.NewRequestLogger(s.slogger))

	securityConfig := mw.SecurityConfig{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowCredentials: true,
	}
	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(echomw.Gzip())
	s.echo.Use(mw.NewSecureHeaders())
}

// Start begins serving HTTP requests in a background goroutine. Use
// Shutdown() to stop the server.
func (s *Server) Start() {
	go func() {
		if err := s.startBlocking(); err != nil {
			s.slogger.Error("Server error", "error", err)
		}
	}()

	s.slogger.Info("HTTP server starting", "address", s.config.ListenAddress)
}

// startBlocking begins serving HTTP requests and blocks until shutdown.
func (s *Server) startBlocking() error {
	err := s.echo.Start(s.config.ListenAddress)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartWithGracefulShutdown starts the server and handles graceful shutdown
// on SIGINT/SIGTERM.
func (s *Server) StartWithGracefulShutdown() error {
	s.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	s.slogger.Info("Shutdown signal received, initiating graceful shutdown...")

	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.slogger.Error("Error during server shutdown", "error", err)
		return fmt.Errorf("shutdown error: %w", err)
	}

	if s.logCloser != nil {
		if err := s.logCloser(); err != nil {
			s.slogger.Error("Error closing log file", "error", err)
		}
	}

	s.slogger.Info("Server shutdown complete")
	return nil
}

// Controller returns the API controller.
func (s *Server) Controller() *Controller {
	return s.controller
}

// Echo returns the underlying Echo instance, useful for testing.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
