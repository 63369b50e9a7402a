// Package server is the reference AeroSense backend: account, profile and
// password-recovery endpoints over a SQLite database.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aerosense-dev/aerosense/internal/auth"
	"github.com/aerosense-dev/aerosense/internal/config"
	"github.com/aerosense-dev/aerosense/internal/models"
	"github.com/aerosense-dev/aerosense/internal/workers"
)

// Server represents the HTTP server
type Server struct {
	router      *gin.Engine
	db          *gorm.DB
	config      *config.Config
	logger      zerolog.Logger
	validator   *validator.Validate
	dispatcher  OTPDispatcher
	asynqClient *asynq.Client
	sweeper     *workers.ResetSweeper
	version     string
	now         func() time.Time
}

// New creates a new server instance backed by the configured database.
// With a Redis address, codes are delivered through the asynq queue;
// without one they are delivered in-process.
func New(cfg *config.Config, zlog zerolog.Logger, version string) (*Server, error) {
	db, err := initDatabase(cfg, zlog)
	if err != nil {
		return nil, err
	}

	var dispatcher OTPDispatcher
	var asynqClient *asynq.Client
	if cfg.Redis.Address != "" {
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr: cfg.Redis.Address,
		})
		dispatcher = NewAsynqDispatcher(asynqClient)
	} else {
		zlog.Warn().Msg("REDIS_ADDRESS not set - delivering one-time codes in-process")
		dispatcher = NewInlineDispatcher(workers.NewLogMailer(zlog), zlog)
	}

	srv, err := NewWithDB(db, cfg, zlog, dispatcher)
	if err != nil {
		return nil, err
	}
	srv.asynqClient = asynqClient
	srv.version = version
	return srv, nil
}

// NewWithDB creates a server over an open database. It migrates the
// schema and initializes JWT signing.
func NewWithDB(db *gorm.DB, cfg *config.Config, zlog zerolog.Logger, dispatcher OTPDispatcher) (*Server, error) {
	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	secret, err := loadJWTSecret(db, cfg.Auth.JWTSecret)
	if err != nil {
		return nil, err
	}
	auth.InitializeJWT(secret, cfg.Auth.TokenTTL)

	validate := validator.New()
	validate.RegisterValidation("otpcode", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		if len(value) != auth.OTPDigits {
			return false
		}
		for _, char := range value {
			if char < '0' || char > '9' {
				return false
			}
		}
		return true
	})

	server := &Server{
		db:         db,
		config:     cfg,
		logger:     zlog,
		validator:  validate,
		dispatcher: dispatcher,
		version:    "dev",
		now:        time.Now,
	}

	server.setupRouter()

	return server, nil
}

// loadJWTSecret prefers the configured secret, then the persisted one,
// and otherwise generates and persists a new secret.
func loadJWTSecret(db *gorm.DB, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	var cfg models.Config
	err := db.First(&cfg).Error
	if err == nil {
		return cfg.JWTSecret, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	secret, err := auth.GenerateSecret()
	if err != nil {
		return "", err
	}
	if err := db.Create(&models.Config{JWTSecret: secret}).Error; err != nil {
		return "", fmt.Errorf("failed to persist JWT secret: %w", err)
	}
	return secret, nil
}

// initDatabase initializes the database connection with production settings
func initDatabase(cfg *config.Config, zlog zerolog.Logger) (*gorm.DB, error) {
	const (
		maxOpenConns    = 8
		maxIdleConns    = 4
		connMaxLifetime = 300  // 5 minutes
		busyTimeout     = 5000 // 5 seconds
	)

	db, err := gorm.Open(sqlite.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				LogLevel:                  logger.Error,
				IgnoreRecordNotFoundError: true,
				SlowThreshold:             200 * time.Millisecond,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(connMaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL mode must be set first
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout),
		"PRAGMA foreign_keys=1",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			zlog.Warn().Str("pragma", pragma).Err(err).Msg("Failed to apply pragma")
		}
	}

	return db, nil
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.HTTP.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s.router.GET("/health", s.healthCheck)

	// Public auth endpoints
	s.router.POST("/api/auth/signup", s.signup)
	s.router.POST("/api/auth/login", s.login)

	// Password recovery
	reset := s.router.Group("/password-reset")
	{
		reset.POST("/forgot", s.forgotPassword)
		reset.POST("/verify", s.verifyOTP)
		reset.POST("/reset", s.resetPassword)
	}

	// Authenticated API routes (JWT required)
	api := s.router.Group("/api")
	api.Use(JWTAuthMiddleware(s.db, s.logger))
	{
		api.GET("/auth/profile", s.getProfile)
	}
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)

		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetHeader("X-Request-ID")).
			Msg("HTTP request")
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"service":   "aerosense-api",
		"version":   s.version,
	})
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// GetDB returns the database connection for use by workers
func (s *Server) GetDB() *gorm.DB {
	return s.db
}

// Start starts the HTTP server and blocks until SIGINT or SIGTERM
func (s *Server) Start() error {
	addr := s.config.HTTP.Addr

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// In-process mode has no worker, so the server sweeps expired resets
	if s.asynqClient == nil {
		sweeper, err := workers.StartResetSweeper(s.config.Auth.ResetSweepSchedule, s.db, s.logger)
		if err != nil {
			return err
		}
		s.sweeper = sweeper
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")
	case err := <-errChan:
		s.logger.Error().Err(err).Msg("HTTP server error")
		return err
	}

	if s.sweeper != nil {
		s.sweeper.Stop()
	}

	if s.asynqClient != nil {
		if err := s.asynqClient.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Error closing Asynq client")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	s.logger.Info().Msg("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		return err
	}

	// Close database connection to flush WAL writes
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Error closing database")
		}
	}

	s.logger.Info().Msg("Server shutdown complete")
	return nil
}
