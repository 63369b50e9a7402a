package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/aerosense-dev/aerosense/internal/config"
	"github.com/aerosense-dev/aerosense/internal/logger"
	"github.com/aerosense-dev/aerosense/internal/server"
	"github.com/aerosense-dev/aerosense/internal/tasks"
	"github.com/aerosense-dev/aerosense/internal/workers"
)

var version = "dev" // Will be set during build with -ldflags

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.GetLogger()

	if cfg.Redis.Address == "" {
		log.Fatal().Msg("REDIS_ADDRESS is required to run the worker")
	}

	log.Info().Str("version", version).Msg("Starting AeroSense Asynq worker")

	// Reuse the server's database initialization
	srv, err := server.New(cfg, log, version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server (needed for DB)")
	}
	db := srv.GetDB()

	asynqServer := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr: cfg.Redis.Address,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				tasks.QueueCritical: 6,
				"default":           3,
				"low":               1,
			},
			Logger: &asynqLogger{log: log},
		},
	)

	mailer := workers.NewLogMailer(log)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeDeliverOTP, func(ctx context.Context, t *asynq.Task) error {
		return workers.HandleDeliverOTP(ctx, t, mailer, log)
	})

	sweeper, err := workers.StartResetSweeper(cfg.Auth.ResetSweepSchedule, db, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start password reset sweeper")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Starting Asynq worker server...")
		if err := asynqServer.Run(mux); err != nil {
			log.Fatal().Err(err).Msg("Asynq worker server failed")
		}
	}()

	<-sigChan
	log.Info().Msg("Received shutdown signal, shutting down gracefully...")

	sweeper.Stop()

	log.Info().Msg("Stopping Asynq worker - waiting for tasks to finish...")
	asynqServer.Shutdown()

	log.Info().Msg("Worker shutdown complete")
}

// asynqLogger is a wrapper to make zerolog compatible with Asynq's logger interface
type asynqLogger struct {
	log zerolog.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.log.Debug().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.log.Info().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.log.Warn().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.log.Error().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.log.Fatal().Msg(fmt.Sprint(args...))
}
