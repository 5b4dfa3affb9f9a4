package app

import (
	"context"

	apphttp "github.com/yungbote/workbench-backend/internal/http"
	httpH "github.com/yungbote/workbench-backend/internal/http/handlers"
	httpMW "github.com/yungbote/workbench-backend/internal/http/middleware"
	"github.com/yungbote/workbench-backend/internal/observability"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

const serviceName = "workbench-backend"

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health       *httpH.HealthHandler
	Auth         *httpH.AuthHandler
	Category     *httpH.CategoryHandler
	Message      *httpH.MessageHandler
	File         *httpH.FileHandler
	Augmentation *httpH.AugmentationHandler
	Pricing      *httpH.PricingHandler
	Config       *httpH.ConfigHandler
	Stream       *httpH.StreamHandler
}

func wireHandlers(log *logger.Logger, cfg Config, services Services, readiness map[string]func(context.Context) error) Handlers {
	log.Info("Wiring handlers...")
	checks := make(map[string]httpH.Check, len(readiness))
	for name, fn := range readiness {
		checks[name] = fn
	}
	return Handlers{
		Health: httpH.NewHealthHandler(checks),
		Auth: httpH.NewAuthHandler(log, services.Auth, httpH.CookieConfig{
			Domain: cfg.CookieDomain,
			Secure: cfg.CookieSecure,
		}),
		Category:     httpH.NewCategoryHandler(services.Category),
		Message:      httpH.NewMessageHandler(services.Message),
		File:         httpH.NewFileHandler(services.File),
		Augmentation: httpH.NewAugmentationHandler(services.Augmentation, services.Ledger),
		Pricing:      httpH.NewPricingHandler(log, services.Ledger),
		Config:       httpH.NewConfigHandler(services.Config),
		Stream:       httpH.NewStreamHandler(log, services.Dispatcher, httpMW.Origins(cfg.AllowedOrigins)),
	}
}

func wireMiddleware(log *logger.Logger, services Services, metrics *observability.Metrics) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth, metrics),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware, metrics *observability.Metrics, tracing bool) *apphttp.Server {
	rc := apphttp.RouterConfig{
		Log:            log,
		Metrics:        metrics,
		AllowedOrigins: httpMW.Origins(cfg.AllowedOrigins),

		AuthHandler:         handlers.Auth,
		AuthMiddleware:      middleware.Auth,
		CategoryHandler:     handlers.Category,
		MessageHandler:      handlers.Message,
		FileHandler:         handlers.File,
		AugmentationHandler: handlers.Augmentation,
		PricingHandler:      handlers.Pricing,
		ConfigHandler:       handlers.Config,
		StreamHandler:       handlers.Stream,
		HealthHandler:       handlers.Health,
	}
	if tracing {
		rc.TracingService = serviceName
	}
	return apphttp.NewServer(rc)
}
