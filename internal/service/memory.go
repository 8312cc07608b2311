package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/groundwork/internal/embedding"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/store"
)

// ErrEmptyContent is returned when a memory has no content.
var ErrEmptyContent = errors.New("memory content is empty")

// MemoryService handles memory lifecycle with asynchronous embedding.
type MemoryService struct {
	store    store.MemoryStore
	embedder embedding.Embedder
	jobs     *JobManager
	logger   *slog.Logger
}

// NewMemoryService creates a memory service. With a nil jobs manager or embedder,
// memories stay unembedded until a backfill.
func NewMemoryService(s store.MemoryStore, e embedding.Embedder, jobs *JobManager, logger *slog.Logger) *MemoryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryService{store: s, embedder: e, jobs: jobs, logger: logger}
}

// Create stores a candidate memory and queues its embedding.
func (s *MemoryService) Create(ctx context.Context, scope models.Scope, in models.MemoryInput) (*models.Memory, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, ErrEmptyContent
	}
	if in.Type == "" {
		in.Type = models.MemoryTypeFact
	}
	if _, err := models.ParseMemoryType(string(in.Type)); err != nil {
		return nil, err
	}

	mem, err := s.store.CreateMemory(ctx, scope, in)
	if err != nil {
		return nil, fmt.Errorf("create memory: %w", err)
	}
	s.queueEmbed(scope, mem.ID)
	return mem, nil
}

// Update applies upd. A changed title or content queues a new embedding.
func (s *MemoryService) Update(ctx context.Context, scope models.Scope, id string, upd models.MemoryUpdate) (*models.Memory, error) {
	if upd.Content != nil && strings.TrimSpace(*upd.Content) == "" {
		return nil, ErrEmptyContent
	}
	mem, err := s.store.UpdateMemory(ctx, scope, id, upd)
	if err != nil {
		return nil, fmt.Errorf("update memory: %w", err)
	}
	if upd.Title != nil || upd.Content != nil {
		s.queueEmbed(scope, mem.ID)
	}
	return mem, nil
}

// Review approves or rejects a memory. Rejected memories are never retrieved.
func (s *MemoryService) Review(ctx context.Context, scope models.Scope, id string, approve bool) error {
	status := models.MemoryStatusRejected
	if approve {
		status = models.MemoryStatusApproved
	}
	if err := s.store.SetMemoryStatus(ctx, scope, id, status); err != nil {
		return fmt.Errorf("review memory: %w", err)
	}
	return nil
}

// SetActive activates or deactivates a memory.
func (s *MemoryService) SetActive(ctx context.Context, scope models.Scope, id string, active bool) error {
	if err := s.store.SetMemoryActive(ctx, scope, id, active); err != nil {
		return fmt.Errorf("set memory active: %w", err)
	}
	return nil
}

// Get fetches a memory in scope.
func (s *MemoryService) Get(ctx context.Context, scope models.Scope, id string) (*models.Memory, error) {
	return s.store.GetMemory(ctx, scope, id)
}

// Embed computes and stores the embedding of one memory from its current text.
func (s *MemoryService) Embed(ctx context.Context, scope models.Scope, id string) error {
	if s.embedder == nil {
		return errors.New("no embedder configured")
	}
	mem, err := s.store.GetMemory(ctx, scope, id)
	if err != nil {
		return fmt.Errorf("get memory: %w", err)
	}
	vec, err := s.embedder.Embed(ctx, mem.EmbeddingText())
	if err != nil {
		return err
	}
	if err := s.store.SetMemoryEmbedding(ctx, mem.ID, vec); err != nil {
		return fmt.Errorf("store memory embedding: %w", err)
	}
	return nil
}

func (s *MemoryService) queueEmbed(scope models.Scope, id string) {
	if s.jobs == nil || s.embedder == nil {
		s.logger.Debug("memory left unembedded", "memory_id", id)
		return
	}
	s.jobs.Submit(JobEmbedMemory, id, func(ctx context.Context, job *Job) (any, error) {
		return nil, s.Embed(ctx, scope, id)
	})
}
