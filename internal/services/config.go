package services

import (
	"context"

	"github.com/yungbote/workbench-backend/internal/data/userconfig"
	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

type ConfigService interface {
	Get(ctx context.Context) (domain.UserConfig, error)
	Update(ctx context.Context, field string, value any) (domain.UserConfig, error)
}

type configService struct {
	log     *logger.Logger
	configs *userconfig.Store
}

func NewConfigService(log *logger.Logger, configs *userconfig.Store) ConfigService {
	return &configService{log: log.With("service", "ConfigService"), configs: configs}
}

func (s *configService) Get(ctx context.Context) (domain.UserConfig, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return domain.UserConfig{}, err
	}
	return s.configs.Load(userID)
}

func (s *configService) Update(ctx context.Context, field string, value any) (domain.UserConfig, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return domain.UserConfig{}, err
	}
	cfg, err := s.configs.Update(userID, field, value)
	if err != nil {
		return domain.UserConfig{}, err
	}
	s.log.Info("user config updated", "user_id", userID, "field", field)
	return cfg, nil
}
