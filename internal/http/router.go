package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/workbench-backend/internal/http/handlers"
	httpMW "github.com/yungbote/workbench-backend/internal/http/middleware"
	"github.com/yungbote/workbench-backend/internal/observability"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	AllowedOrigins []string
	// TracingService enables otelgin spans under this service name.
	TracingService string

	AuthHandler         *httpH.AuthHandler
	AuthMiddleware      *httpMW.AuthMiddleware
	CategoryHandler     *httpH.CategoryHandler
	MessageHandler      *httpH.MessageHandler
	FileHandler         *httpH.FileHandler
	AugmentationHandler *httpH.AugmentationHandler
	PricingHandler      *httpH.PricingHandler
	ConfigHandler       *httpH.ConfigHandler
	StreamHandler       *httpH.StreamHandler
	HealthHandler       *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingService != "" {
		r.Use(otelgin.Middleware(cfg.TracingService))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics, "/metrics"))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// Auth (public)
	if cfg.AuthHandler != nil {
		r.POST("/auth/register", cfg.AuthHandler.Register)
		r.POST("/auth/login", cfg.AuthHandler.Login)
		r.POST("/auth/refresh", cfg.AuthHandler.Refresh)
		r.GET("/auth/verify", cfg.AuthHandler.VerifyEmail)
	}

	// Streaming authenticates inside the socket so refusals arrive as close frames.
	if cfg.StreamHandler != nil {
		r.GET("/ws/stream", cfg.StreamHandler.Stream)
	}

	protected := r.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}
		protected.Use(httpMW.RequireCSRF())

		// Auth (protected)
		if cfg.AuthHandler != nil {
			protected.GET("/auth/validate", cfg.AuthHandler.Validate)
			protected.POST("/auth/logout", cfg.AuthHandler.Logout)
		}

		// Categories
		if cfg.CategoryHandler != nil {
			protected.GET("/categories", cfg.CategoryHandler.List)
			protected.GET("/categories_with_files", cfg.CategoryHandler.ListWithFiles)
			protected.GET("/categories_with_messages", cfg.CategoryHandler.ListWithMessages)
			protected.POST("/category_instructions", cfg.CategoryHandler.SetInstructions)
		}

		// Messages
		if cfg.MessageHandler != nil {
			protected.GET("/messages/:category", cfg.MessageHandler.List)
			protected.DELETE("/messages/:id", cfg.MessageHandler.Delete)
		}

		// Files
		if cfg.FileHandler != nil {
			protected.GET("/files/:category", cfg.FileHandler.List)
			protected.GET("/files_staged", cfg.FileHandler.Staged)
			protected.GET("/file/:category/:name", cfg.FileHandler.Read)
			protected.POST("/file", cfg.FileHandler.Upload)
			protected.DELETE("/file/:id", cfg.FileHandler.Delete)
		}

		// Augmentation
		if cfg.AugmentationHandler != nil {
			aug := protected.Group("/augmentation")
			aug.POST("/augment_prompt", cfg.AugmentationHandler.AugmentPrompt)
			aug.POST("/question_prompt", cfg.AugmentationHandler.QuestionPrompt)
			aug.POST("/select_persona", cfg.AugmentationHandler.SelectPersona)
			aug.POST("/select_workflow", cfg.AugmentationHandler.SelectWorkflow)
		}

		// Pricing
		if cfg.PricingHandler != nil {
			protected.GET("/pricing/balance", cfg.PricingHandler.Balance)
			protected.GET("/pricing/session", cfg.PricingHandler.Session)
			protected.GET("/pricing/history", cfg.PricingHandler.History)
			protected.POST("/pricing/add", cfg.PricingHandler.Add)
		}

		// User config
		if cfg.ConfigHandler != nil {
			protected.GET("/data/config", cfg.ConfigHandler.Get)
			protected.POST("/data/config", cfg.ConfigHandler.Update)
		}
	}

	return r
}
