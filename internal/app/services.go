package app

import (
	"fmt"

	"github.com/yungbote/workbench-backend/internal/data/repos/ledger"
	"github.com/yungbote/workbench-backend/internal/data/userconfig"
	"github.com/yungbote/workbench-backend/internal/llm"
	"github.com/yungbote/workbench-backend/internal/observability"
	"github.com/yungbote/workbench-backend/internal/platform/filestore"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
	"github.com/yungbote/workbench-backend/internal/realtime"
	"github.com/yungbote/workbench-backend/internal/services"
)

type Services struct {
	Auth         services.AuthService
	Ledger       services.LedgerService
	Augmentation services.AugmentationService
	Persona      services.PersonaService
	Prompt       services.PromptService
	Category     services.CategoryService
	Message      services.MessageService
	File         services.FileService
	Config       services.ConfigService

	Dispatcher *realtime.Dispatcher
	Meter      *llm.CostMeter
}

func wireServices(log *logger.Logger, cfg Config, clients *Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	files, err := filestore.New(cfg.FilesRoot, log)
	if err != nil {
		return Services{}, fmt.Errorf("init file store: %w", err)
	}
	configs, err := userconfig.New(cfg.ConfigRoot, log)
	if err != nil {
		return Services{}, fmt.Errorf("init user config store: %w", err)
	}

	meter := &llm.CostMeter{}
	orchestrator, err := llm.New(log, clients.OpenAI, meter, metrics, llm.ConfigFromEnv())
	if err != nil {
		return Services{}, fmt.Errorf("init llm orchestrator: %w", err)
	}

	entries := ledger.NewEntryRepo(clients.DB, log)
	ledgerService := services.NewLedgerService(log, clients.Graph, entries, meter, metrics)

	authService, err := services.NewAuthService(log, clients.Graph, clients.Revoked, ledgerService, clients.Mailer, metrics, services.AuthConfig{
		Secret:        cfg.JWTSecretKey,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		VerifyTTL:     cfg.VerifyTokenTTL,
		PromoCredit:   cfg.PromoCredit,
		PublicBaseURL: cfg.PublicBaseURL,
		Now:           cfg.now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init auth service: %w", err)
	}

	augment := services.NewAugmentationService(log, orchestrator, clients.Graph, files)
	persona := services.NewPersonaService(log, orchestrator, clients.Graph, files, configs, augment)
	prompts := services.NewPromptService(log, clients.Graph, files, configs, augment, metrics, cfg.TopicExtraction)

	return Services{
		Auth:         authService,
		Ledger:       ledgerService,
		Augmentation: augment,
		Persona:      persona,
		Prompt:       prompts,
		Category:     services.NewCategoryService(log, clients.Graph),
		Message:      services.NewMessageService(log, clients.Graph),
		File:         services.NewFileService(log, clients.Graph, files),
		Config:       services.NewConfigService(log, configs),
		Dispatcher:   realtime.NewDispatcher(log, authService, ledgerService, persona, prompts, metrics),
		Meter:        meter,
	}, nil
}
