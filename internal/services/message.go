package services

import (
	"context"

	"github.com/yungbote/workbench-backend/internal/data/graph"
	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

type MessageService interface {
	// List returns the category's messages, newest first.
	List(ctx context.Context, category string) ([]domain.Message, error)
	// Delete removes a message. It reports whether its category went with it.
	Delete(ctx context.Context, id string) (bool, error)
}

type messageService struct {
	log   *logger.Logger
	store graph.Store
}

func NewMessageService(log *logger.Logger, store graph.Store) MessageService {
	return &messageService{log: log.With("service", "MessageService"), store: store}
}

func (s *messageService) List(ctx context.Context, category string) ([]domain.Message, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.GetMessages(ctx, userID, category)
}

func (s *messageService) Delete(ctx context.Context, id string) (bool, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return false, err
	}
	deleted, err := s.store.DeleteMessage(ctx, userID, id)
	if err != nil {
		return false, err
	}
	if deleted {
		s.log.Info("category removed with its last message", "user_id", userID, "message_id", id)
	}
	return deleted, nil
}
