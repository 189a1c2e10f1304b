package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/formloom/formloom/internal/database"
	"github.com/formloom/formloom/internal/mail"
	"github.com/formloom/formloom/internal/tasks"
	"github.com/formloom/formloom/internal/webhooks"
	"github.com/formloom/formloom/pkg/config"
	"github.com/formloom/formloom/pkg/crypto"
	"github.com/formloom/formloom/pkg/queue"
	"github.com/formloom/formloom/pkg/util"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting formloom worker")

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	// The worker must share the server's key or it cannot decrypt
	// webhook signing secrets.
	if cfg.Encryption.Key == "" {
		logger.Error("ENCRYPTION_KEY is required for the worker")
		os.Exit(1)
	}
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}

	mailer := mail.New(&cfg.SMTP, logger)
	webhookService := webhooks.NewService(db, encryptor)

	// Create Asynq server
	srv := queue.NewServer(&cfg.Redis, 10)

	// Create task handler
	handler := tasks.NewHandler(db, logger, mailer, webhookService,
		cfg.Server.PublicBaseURL, cfg.Cleanup.Retention())

	// Register handlers
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// Schedule the retention sweep. The worker owns the schedule so a
	// fleet of api nodes does not enqueue duplicate sweeps.
	if err := util.ValidateCronExpr(cfg.Cleanup.Schedule); err != nil {
		logger.Error("invalid cleanup schedule", "schedule", cfg.Cleanup.Schedule, "error", err)
		os.Exit(1)
	}
	client := queue.NewClient(&cfg.Redis)
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Cleanup.Schedule, func() {
		task, err := tasks.NewCleanupSweepTask()
		if err == nil {
			_, err = client.Enqueue(task)
		}
		if err != nil {
			logger.Error("failed to enqueue cleanup sweep", "error", err)
			return
		}
		logger.Info("enqueued cleanup sweep")
	})
	if err != nil {
		logger.Error("failed to schedule cleanup sweep", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	if next, err := util.NextCronTime(cfg.Cleanup.Schedule, time.Now()); err == nil {
		logger.Info("cleanup sweep scheduled", "schedule", cfg.Cleanup.Schedule, "next_run", next)
	}

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		<-scheduler.Stop().Done()
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	// Start the server
	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	// Wait for context cancellation
	<-ctx.Done()

	client.Close()
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
