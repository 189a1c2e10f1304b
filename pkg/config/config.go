package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	SMTP       SMTPConfig
	Storage    StorageConfig
	Encryption EncryptionConfig
	Cleanup    CleanupConfig
	CORS       CORSConfig
}

type ServerConfig struct {
	Host string
	Port int
	Env  string
	// PublicBaseURL is the externally reachable URL used in emails
	// (verification and password-reset links).
	PublicBaseURL string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret            string
	AccessTTLMinutes  int
	RefreshTTLHours   int
}

// RateLimitConfig holds the two built-in policies: Default protects public
// submission ingest, Auth protects signup/login/forgot-password.
type RateLimitConfig struct {
	Requests          int
	WindowSeconds     int
	AuthRequests      int
	AuthWindowSeconds int
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// StorageConfig configures the S3-compatible upload store (MinIO in dev).
type StorageConfig struct {
	Region         string
	Bucket         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	MaxUploadBytes int64
}

type EncryptionConfig struct {
	Key string
}

type CleanupConfig struct {
	Schedule      string // cron expression for the retention sweep
	RetentionDays int    // soft-deleted forms older than this are purged
}

type CORSConfig struct {
	AllowedOrigins []string
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) AccessTTL() time.Duration {
	return time.Duration(j.AccessTTLMinutes) * time.Minute
}

func (j *JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(j.RefreshTTLHours) * time.Hour
}

func (c *CleanupConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (s *ServerConfig) IsProduction() bool {
	return s.Env == "production"
}

func (s *SMTPConfig) Configured() bool {
	return s.Host != ""
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "formloom")
	v.SetDefault("DATABASE_PASSWORD", "formloom_secret")
	v.SetDefault("DATABASE_NAME", "formloom")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_ACCESS_TTL_MINUTES", 60)
	v.SetDefault("JWT_REFRESH_TTL_HOURS", 720)
	v.SetDefault("RATE_LIMIT_REQUESTS", 10)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 600)
	v.SetDefault("RATE_LIMIT_AUTH_REQUESTS", 5)
	v.SetDefault("RATE_LIMIT_AUTH_WINDOW_SECONDS", 900)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "no-reply@formloom.dev")
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("STORAGE_BUCKET", "formloom-uploads")
	v.SetDefault("STORAGE_ENDPOINT", "")
	v.SetDefault("STORAGE_ACCESS_KEY", "")
	v.SetDefault("STORAGE_SECRET_KEY", "")
	v.SetDefault("STORAGE_MAX_UPLOAD_BYTES", 10<<20)
	v.SetDefault("CLEANUP_SCHEDULE", "0 3 * * *")
	v.SetDefault("CLEANUP_RETENTION_DAYS", 30)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var origins []string
	if raw := v.GetString("CORS_ALLOWED_ORIGINS"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:          v.GetString("SERVER_HOST"),
			Port:          v.GetInt("SERVER_PORT"),
			Env:           v.GetString("SERVER_ENV"),
			PublicBaseURL: strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:           v.GetString("JWT_SECRET"),
			AccessTTLMinutes: v.GetInt("JWT_ACCESS_TTL_MINUTES"),
			RefreshTTLHours:  v.GetInt("JWT_REFRESH_TTL_HOURS"),
		},
		RateLimit: RateLimitConfig{
			Requests:          v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds:     v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
			AuthRequests:      v.GetInt("RATE_LIMIT_AUTH_REQUESTS"),
			AuthWindowSeconds: v.GetInt("RATE_LIMIT_AUTH_WINDOW_SECONDS"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("SMTP_FROM"),
		},
		Storage: StorageConfig{
			Region:         v.GetString("STORAGE_REGION"),
			Bucket:         v.GetString("STORAGE_BUCKET"),
			Endpoint:       v.GetString("STORAGE_ENDPOINT"),
			AccessKey:      v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey:      v.GetString("STORAGE_SECRET_KEY"),
			MaxUploadBytes: v.GetInt64("STORAGE_MAX_UPLOAD_BYTES"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		Cleanup: CleanupConfig{
			Schedule:      v.GetString("CLEANUP_SCHEDULE"),
			RetentionDays: v.GetInt("CLEANUP_RETENTION_DAYS"),
		},
		CORS: CORSConfig{
			AllowedOrigins: origins,
		},
	}

	return cfg, nil
}
