package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	apphttp "github.com/yungbote/workbench-backend/internal/http"
	"github.com/yungbote/workbench-backend/internal/observability"
	"github.com/yungbote/workbench-backend/internal/platform/envutil"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Clients  *Clients
	Services Services
	Server   *apphttp.Server
	Metrics  *observability.Metrics

	shutdownOTel func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)
	if cfg.production() {
		gin.SetMode(gin.ReleaseMode)
	}

	var metrics *observability.Metrics
	if observability.Enabled() {
		metrics = observability.Init(log)
	}
	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = shutdownOTel(ctx)
		log.Sync()
		return nil, err
	}

	serviceset, err := wireServices(log, cfg, clients, metrics)
	if err != nil {
		clients.Close()
		_ = shutdownOTel(ctx)
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, cfg, serviceset, clients.ReadinessChecks())
	middleware := wireMiddleware(log, serviceset, metrics)
	server := wireServer(log, cfg, handlerset, middleware, metrics, envutil.Bool("OTEL_ENABLED", false))

	return &App{
		Log:          log,
		Cfg:          cfg,
		Clients:      clients,
		Services:     serviceset,
		Server:       server,
		Metrics:      metrics,
		shutdownOTel: shutdownOTel,
	}, nil
}

// Run serves HTTP until ctx ends.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Server listening", "addr", a.Cfg.Addr(), "environment", a.Cfg.Environment)
	return a.Server.Run(ctx, a.Cfg.Addr())
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.shutdownOTel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdownOTel(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	a.Clients.Close()
	if a.Log != nil {
		a.Log.Sync()
	}
}
