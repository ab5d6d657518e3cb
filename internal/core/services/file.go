package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driving"
)

// Ensure fileService implements FileService
var _ driving.FileService = (*fileService)(nil)

// fileService implements the FileService interface. Files are immutable;
// references accrue when document versions cite them and removal happens
// through the document cascade.
type fileService struct {
	tx driven.TxManager
}

// NewFileService creates a new FileService.
func NewFileService(tx driven.TxManager) driving.FileService {
	return &fileService{tx: tx}
}

// CreateFile stores content and returns the new, unreferenced file.
func (s *fileService) CreateFile(ctx context.Context, content []byte) (*domain.File, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("file content is empty")
	}

	file := &domain.File{
		ID:        domain.NewID(),
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	err := driven.RunWithRetry(ctx, s.tx, txAttempts, func(repo driven.Repository) error {
		return repo.Files().Save(ctx, file)
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

// GetFile retrieves a file by id.
func (s *fileService) GetFile(ctx context.Context, fileID string) (*domain.File, error) {
	var result *domain.File
	err := s.tx.RunInSerializableTransaction(ctx, func(repo driven.Repository) error {
		file, err := repo.Files().Get(ctx, fileID)
		if err != nil {
			return err
		}
		result = file
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
