package service

import (
	"context"

	"github.com/webchothuetro/chat-service/internal/domain"
	"github.com/webchothuetro/chat-service/internal/postgres"
)

// InboxService is the staff-side read projection: per-conversation
// summaries and read marking. It never sits on the message hot path.
type InboxService struct {
	messageRepo *postgres.MessageRepository
}

func NewInboxService(messageRepo *postgres.MessageRepository) *InboxService {
	return &InboxService{messageRepo: messageRepo}
}

func (s *InboxService) Summaries(ctx context.Context) ([]domain.ConversationSummary, error) {
	return s.messageRepo.Summaries(ctx)
}

func (s *InboxService) MarkRead(ctx context.Context, userID int64) (int64, error) {
	return s.messageRepo.MarkRead(ctx, userID)
}
