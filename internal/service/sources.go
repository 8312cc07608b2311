package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/store"
)

// ErrEmptyLocator is returned when registering a source without a locator.
var ErrEmptyLocator = errors.New("source locator is empty")

// SourceService registers and reads knowledge sources.
type SourceService struct {
	store store.SourceStore
}

func NewSourceService(s store.SourceStore) *SourceService {
	return &SourceService{store: s}
}

// Register creates a pending source. Ingest it to make it searchable.
func (s *SourceService) Register(ctx context.Context, scope models.Scope, in models.SourceInput) (*models.KnowledgeSource, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if _, err := models.ParseSourceType(string(in.Type)); err != nil {
		return nil, err
	}
	in.Locator = strings.TrimSpace(in.Locator)
	if in.Locator == "" {
		return nil, ErrEmptyLocator
	}

	src, err := s.store.CreateSource(ctx, scope, in)
	if err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}
	return src, nil
}

func (s *SourceService) Get(ctx context.Context, scope models.Scope, id string) (*models.KnowledgeSource, error) {
	return s.store.GetSource(ctx, scope, id)
}

func (s *SourceService) List(ctx context.Context, scope models.Scope) ([]models.KnowledgeSource, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListSources(ctx, scope)
}
