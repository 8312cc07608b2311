package service

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/store"
)

// ConversationService creates conversations and reads their history.
type ConversationService struct {
	store store.ConversationStore
}

func NewConversationService(s store.ConversationStore) *ConversationService {
	return &ConversationService{store: s}
}

// Create starts a conversation for the scope's owner.
func (s *ConversationService) Create(ctx context.Context, scope models.Scope, title string) (*models.Conversation, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	conv, err := s.store.CreateConversation(ctx, scope, title)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// History returns up to limit latest messages, oldest first.
func (s *ConversationService) History(ctx context.Context, scope models.Scope, conversationID string, limit int) ([]models.Message, error) {
	if _, err := s.store.GetConversation(ctx, scope, conversationID); err != nil {
		return nil, err
	}
	return s.store.RecentMessages(ctx, conversationID, limit)
}
