package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/webchothuetro/chat-service/internal/domain"
	"github.com/webchothuetro/chat-service/internal/postgres"
)

const (
	maxMessageLen = 4000
	snippetLen    = 140

	// Vietnamese storefront fallback for image-only messages.
	imageSnippet = "📷 Ảnh"

	// Legacy frontend format: HH:MM DD/MM/YYYY.
	timestampLayout = "15:04 02/01/2006"
)

type ChatService struct {
	messageRepo *postgres.MessageRepository
}

func NewChatService(messageRepo *postgres.MessageRepository) *ChatService {
	return &ChatService{messageRepo: messageRepo}
}

// Save validates and persists one message into the conversation owned by
// userID. Either text or imageURL must be non-empty after trimming.
func (s *ChatService) Save(ctx context.Context, userID int64, sender domain.Sender, text, imageURL string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	imageURL = strings.TrimSpace(imageURL)
	if text == "" && imageURL == "" {
		return nil, domain.ErrEmptyMessage
	}
	if len(text) > maxMessageLen {
		return nil, domain.ErrMessageTooLong
	}

	var textPtr, imagePtr *string
	if text != "" {
		textPtr = &text
	}
	if imageURL != "" {
		imagePtr = &imageURL
	}
	return s.messageRepo.Append(ctx, userID, sender, textPtr, imagePtr)
}

func (s *ChatService) ListByUser(ctx context.Context, userID int64) ([]domain.Message, error) {
	return s.messageRepo.ListByUser(ctx, userID)
}

func (s *ChatService) History(ctx context.Context, userID int64, after string, limit int) ([]domain.Message, string, error) {
	return s.messageRepo.History(ctx, userID, after, limit)
}

// Snippet truncates a message body to at most 140 runes for previews,
// appending "..." when something was cut off.
func Snippet(text string) string {
	if utf8.RuneCountInString(text) <= snippetLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:snippetLen]) + "..."
}

// NotifySnippet is the staff notification preview: the text snippet, or an
// image marker when the message carries only an attachment.
func NotifySnippet(text, imageURL string) string {
	if text != "" {
		return Snippet(text)
	}
	if imageURL != "" {
		return imageSnippet
	}
	return ""
}

// FormatTimestamp renders a message time the way the storefront frontend
// expects it.
func FormatTimestamp(t time.Time) string {
	return t.Format(timestampLayout)
}
