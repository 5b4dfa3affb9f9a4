package services

import (
	"context"
	"fmt"

	"github.com/yungbote/workbench-backend/internal/data/graph"
	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/platform/apierr"
	"github.com/yungbote/workbench-backend/internal/platform/filestore"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

type FileService interface {
	List(ctx context.Context, category string) ([]domain.File, error)
	// Read returns the contents of a file promoted into category.
	Read(ctx context.Context, category, name string) ([]byte, error)
	// Stage stores an upload in the user's staging area and returns the stored name.
	Stage(ctx context.Context, name string, data []byte) (string, error)
	Staged(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
}

type fileService struct {
	log   *logger.Logger
	store graph.Store
	files *filestore.Store
}

func NewFileService(log *logger.Logger, store graph.Store, files *filestore.Store) FileService {
	return &fileService{log: log.With("service", "FileService"), store: store, files: files}
}

func (s *fileService) List(ctx context.Context, category string) ([]domain.File, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.GetFiles(ctx, userID, category)
}

func (s *fileService) Read(ctx context.Context, category, name string) ([]byte, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return nil, err
	}
	files, err := s.store.GetFiles(ctx, userID, category)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.Name == name {
			return s.files.Read(f.CategoryID, f.Name)
		}
	}
	return nil, apierr.NotFound(fmt.Errorf("file %q not found in category %q", name, domain.NormalizeCategory(category)))
}

func (s *fileService) Stage(ctx context.Context, name string, data []byte) (string, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return "", err
	}
	stored, err := s.files.Stage(userID, name, data)
	if err != nil {
		return "", err
	}
	s.log.Info("file staged", "user_id", userID, "name", stored, "bytes", len(data))
	return stored, nil
}

func (s *fileService) Staged(ctx context.Context) ([]string, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.files.ListStaged(userID)
}

func (s *fileService) Delete(ctx context.Context, id string) error {
	userID, err := userFrom(ctx)
	if err != nil {
		return err
	}
	ref, err := s.store.DeleteFile(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.files.Remove(ref.CategoryID, ref.Name); err != nil {
		s.log.Warn("file node deleted but bytes remain", "file_id", id, "error", err)
	}
	return nil
}
