package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/formloom/formloom/internal/api"
	"github.com/formloom/formloom/internal/auth"
	"github.com/formloom/formloom/internal/cache"
	"github.com/formloom/formloom/internal/database"
	"github.com/formloom/formloom/internal/ratelimit"
	"github.com/formloom/formloom/internal/storage"
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

	logger.Info("starting formloom api",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Connect to Redis. The limiter and session store fall back to
	// process-local memory without it, which is fine for a single node.
	redisClient := cache.NewClient(&cfg.Redis)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis, using in-memory stores", "error", err)
		redisClient = nil
	}

	var store cache.Store
	if redisClient != nil {
		store = cache.NewRedisStore(redisClient)
	} else {
		store = cache.NewMemoryStore()
	}

	// Asynq client for background job enqueueing
	asynqClient := queue.NewClient(&cfg.Redis)

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessTTL(), cfg.JWT.RefreshTTL())
	sessions := auth.NewSessionStore(store, cfg.JWT.RefreshTTL())
	onetime := auth.NewOneTimeTokens(store)
	authService := auth.NewService(db, jwtService, sessions, onetime, asynqClient, logger)
	limiter := ratelimit.NewLimiter(store, logger)

	// Encryptor for webhook signing secrets
	key := cfg.Encryption.Key
	if key == "" {
		key, err = crypto.GenerateKey()
		if err != nil {
			logger.Error("failed to generate encryption key", "error", err)
			os.Exit(1)
		}
		logger.Warn("ENCRYPTION_KEY not set, using generated key - webhook secrets will be unreadable after restart")
	}
	encryptor, err := crypto.NewEncryptor(key)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}

	// S3 uploader for file fields
	var uploader *storage.Uploader
	if cfg.Storage.Bucket != "" {
		s3Client, err := storage.NewClient(context.Background(), &cfg.Storage)
		if err != nil {
			logger.Warn("failed to configure storage, uploads disabled", "error", err)
		} else {
			uploader = storage.NewUploader(s3Client, &cfg.Storage)
		}
	}

	publicPolicy, authPolicy := api.DefaultPolicies(
		cfg.RateLimit.Requests, cfg.RateLimit.WindowSeconds,
		cfg.RateLimit.AuthRequests, cfg.RateLimit.AuthWindowSeconds,
	)

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:             db,
		Redis:          redisClient,
		Logger:         logger,
		JWTService:     jwtService,
		AuthService:    authService,
		Encryptor:      encryptor,
		AsynqClient:    asynqClient,
		Uploader:       uploader,
		Limiter:        limiter,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		ExposeErrors:   !cfg.Server.IsProduction(),
		PublicPolicy:   publicPolicy,
		AuthPolicy:     authPolicy,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	asynqClient.Close()

	if redisClient != nil {
		redisClient.Close()
	}

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
