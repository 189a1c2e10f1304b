package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/formloom/formloom/internal/api/handlers"
	"github.com/formloom/formloom/internal/api/middleware"
	"github.com/formloom/formloom/internal/auth"
	"github.com/formloom/formloom/internal/database/models"
	"github.com/formloom/formloom/internal/forms"
	"github.com/formloom/formloom/internal/ratelimit"
	"github.com/formloom/formloom/internal/storage"
	"github.com/formloom/formloom/internal/submissions"
	"github.com/formloom/formloom/internal/webhooks"
	"github.com/formloom/formloom/internal/workspaces"
	"github.com/formloom/formloom/pkg/crypto"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB          *gorm.DB
	Redis       *redis.Client // nil when running without Redis
	Logger      *slog.Logger
	JWTService  *auth.JWTService
	AuthService *auth.Service
	Encryptor   *crypto.Encryptor
	AsynqClient *asynq.Client
	Uploader    *storage.Uploader // nil disables the upload endpoints
	Limiter     *ratelimit.Limiter

	AllowedOrigins []string

	// ExposeErrors puts panic messages in 500 bodies. Leave false in
	// production.
	ExposeErrors bool

	// PublicPolicy throttles unauthenticated traffic per client IP;
	// AuthPolicy is the tighter budget for credential endpoints.
	PublicPolicy ratelimit.Policy
	AuthPolicy   ratelimit.Policy
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger, cfg.ExposeErrors))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Metrics())

	// CORS - restrict to configured origins, or allow localhost in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize services
	formService := forms.NewService(cfg.DB)
	submissionService := submissions.NewService(cfg.DB, cfg.AsynqClient, cfg.Logger)
	workspaceService := workspaces.NewService(cfg.DB)
	webhookService := webhooks.NewService(cfg.DB, cfg.Encryptor)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService)
	formHandler := handlers.NewFormHandler(formService)
	submissionHandler := handlers.NewSubmissionHandler(submissionService)
	publicHandler := handlers.NewPublicHandler(formService, submissionService)
	workspaceHandler := handlers.NewWorkspaceHandler(workspaceService)
	webhookHandler := handlers.NewWebhookHandler(webhookService)

	var uploadHandler *handlers.UploadHandler
	if cfg.Uploader != nil {
		uploadHandler = handlers.NewUploadHandler(cfg.Uploader, formService)
	}

	// Role gates for the protected surface
	viewer := middleware.RequireRole(models.RoleViewer)
	editor := middleware.RequireRole(models.RoleEditor)
	admin := middleware.RequireRole(models.RoleAdmin)

	publicLimit := middleware.RateLimitByUser(cfg.Limiter, "public", cfg.PublicPolicy)
	authLimit := middleware.RateLimit(cfg.Limiter, "auth", cfg.AuthPolicy)
	apiLimit := middleware.RateLimitByUser(cfg.Limiter, "api", cfg.PublicPolicy)

	// Operational endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Method("GET", "/metrics", middleware.MetricsHandler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints, throttled per client IP
		r.Group(func(r chi.Router) {
			r.Use(authLimit)
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/refresh", authHandler.Refresh)
			r.Post("/auth/verify-email", authHandler.VerifyEmail)
			r.Post("/auth/resend-verification", authHandler.ResendVerification)
			r.Post("/auth/forgot-password", authHandler.ForgotPassword)
			r.Post("/auth/reset-password", authHandler.ResetPassword)
		})

		// Public form surface for embedded clients. Auth is optional
		// here: a builder testing their own form draws from a
		// per-user budget instead of the embed widget's shared per-IP
		// budget, and a bad token never turns the widget away.
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWTService))
			r.Use(publicLimit)
			r.Get("/public/forms/{formID}", publicHandler.GetForm)
			r.Post("/public/forms/{formID}/submissions", publicHandler.Ingest)
			if uploadHandler != nil {
				r.Post("/public/forms/{formID}/uploads", uploadHandler.PresignUpload)
			}
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))
			r.Use(apiLimit)

			r.Post("/auth/logout", authHandler.Logout)
			r.Post("/auth/switch-workspace", authHandler.SwitchWorkspace)
			r.Get("/me", authHandler.Me)

			// Workspace endpoints
			r.Route("/workspaces", func(r chi.Router) {
				r.Get("/", workspaceHandler.List)
				r.Post("/", workspaceHandler.Create)
				r.Route("/current", func(r chi.Router) {
					r.With(viewer).Get("/", workspaceHandler.Current)
					r.With(admin).Patch("/", workspaceHandler.Update)
					r.Route("/members", func(r chi.Router) {
						r.With(viewer).Get("/", workspaceHandler.ListMembers)
						r.With(admin).Post("/", workspaceHandler.AddMember)
						r.With(admin).Patch("/{userID}", workspaceHandler.UpdateMember)
						r.With(admin).Delete("/{userID}", workspaceHandler.RemoveMember)
					})
				})
			})

			// Form endpoints
			r.Route("/forms", func(r chi.Router) {
				r.With(viewer).Get("/", formHandler.List)
				r.With(editor).Post("/", formHandler.Create)

				r.Route("/{formID}", func(r chi.Router) {
					r.With(viewer).Get("/", formHandler.Get)
					r.With(editor).Patch("/", formHandler.Update)
					r.With(admin).Delete("/", formHandler.Delete)
					r.With(editor).Post("/publish", formHandler.Publish)
					r.With(editor).Post("/archive", formHandler.Archive)

					r.Route("/submissions", func(r chi.Router) {
						r.Use(viewer)
						r.Get("/", submissionHandler.List)
						r.Get("/export", submissionHandler.Export)
						r.Get("/{submissionID}", submissionHandler.Get)
					})

					r.Route("/webhooks", func(r chi.Router) {
						r.Use(admin)
						r.Get("/", webhookHandler.List)
						r.Post("/", webhookHandler.Create)
						r.Get("/{webhookID}", webhookHandler.Get)
						r.Patch("/{webhookID}", webhookHandler.Update)
						r.Delete("/{webhookID}", webhookHandler.Delete)
					})

					if uploadHandler != nil {
						r.With(viewer).Get("/uploads", uploadHandler.PresignDownload)
					}
				})
			})
		})
	})

	return &Router{r}
}

// DefaultPolicies derives the two limiter policies from raw config
// values, falling back to something sane when unset.
func DefaultPolicies(publicReqs, publicSecs, authReqs, authSecs int) (public, authp ratelimit.Policy) {
	if publicReqs <= 0 {
		publicReqs = 10
	}
	if publicSecs <= 0 {
		publicSecs = 600
	}
	if authReqs <= 0 {
		authReqs = 5
	}
	if authSecs <= 0 {
		authSecs = 900
	}
	public = ratelimit.Policy{Requests: publicReqs, Window: time.Duration(publicSecs) * time.Second}
	authp = ratelimit.Policy{Requests: authReqs, Window: time.Duration(authSecs) * time.Second}
	return public, authp
}
