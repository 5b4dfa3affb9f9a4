package services

import (
	"context"
	"fmt"

	"github.com/yungbote/workbench-backend/internal/data/graph"
	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/platform/apierr"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

type CategoryService interface {
	List(ctx context.Context) ([]string, error)
	ListWithFiles(ctx context.Context) ([]string, error)
	ListWithMessages(ctx context.Context) ([]string, error)
	// SetInstructions creates the category when needed.
	SetInstructions(ctx context.Context, name, instructions string) error
}

type categoryService struct {
	log   *logger.Logger
	store graph.Store
}

func NewCategoryService(log *logger.Logger, store graph.Store) CategoryService {
	return &categoryService{log: log.With("service", "CategoryService"), store: store}
}

func (s *categoryService) List(ctx context.Context) ([]string, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.ListCategories(ctx, userID)
}

func (s *categoryService) ListWithFiles(ctx context.Context) ([]string, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.ListCategoriesWithFiles(ctx, userID)
}

func (s *categoryService) ListWithMessages(ctx context.Context) ([]string, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.ListCategoriesWithMessages(ctx, userID)
}

func (s *categoryService) SetInstructions(ctx context.Context, name, instructions string) error {
	userID, err := userFrom(ctx)
	if err != nil {
		return err
	}
	name = domain.NormalizeCategory(name)
	if name == "" {
		return apierr.BadRequest(apierr.CodeMissingField, fmt.Errorf("category_name must not be empty"))
	}
	if r := []rune(instructions); len(r) > domain.MaxCategoryInstructions {
		instructions = string(r[:domain.MaxCategoryInstructions])
	}
	if err := s.store.SetCategoryInstructions(ctx, userID, name, instructions); err != nil {
		return err
	}
	s.log.Info("category instructions updated", "user_id", userID, "category", name)
	return nil
}
