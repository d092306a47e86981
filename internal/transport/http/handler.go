package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/webchothuetro/chat-service/internal/domain"
	"github.com/webchothuetro/chat-service/internal/postgres"
	"github.com/webchothuetro/chat-service/internal/service"
	httpmw "github.com/webchothuetro/chat-service/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	chatSvc  *service.ChatService
	inboxSvc *service.InboxService
	users    *postgres.UserRepository
}

func NewHandler(chat *service.ChatService, inbox *service.InboxService, users *postgres.UserRepository) *Handler {
	return &Handler{
		chatSvc:  chat,
		inboxSvc: inbox,
		users:    users,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// caller resolves the authenticated user behind the request.
func (h *Handler) caller(ctx context.Context) (*domain.User, error) {
	id := httpmw.CallerIDFromCtx(ctx)
	if id == 0 {
		return nil, domain.ErrUserNotFound
	}
	return h.users.Get(ctx, id)
}

// GET /chats — staff dashboard: one summary row per conversation,
// most recent first.
func (h *Handler) ListSummaries(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r.Context())
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unknown caller"})
		return
	}
	if !caller.IsStaff {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "staff only"})
		return
	}

	items, err := h.inboxSvc.Summaries(r.Context())
	if err != nil {
		slog.Error("handler.ListSummaries:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	resp := SummariesResponse{Items: make([]SummaryItem, 0, len(items))}
	for _, s := range items {
		resp.Items = append(resp.Items, SummaryItem{
			UserID:      strconv.FormatInt(s.UserID, 10),
			LastMessage: s.LastMessage,
			UnreadCount: s.UnreadCount,
			TotalCount:  s.TotalCount,
			LastAt:      s.LastAt,
			LastTime:    service.FormatTimestamp(s.LastAt),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /chats/{userID}/messages?after=&limit=
//
// Without pagination params the full conversation is returned oldest
// first (the legacy chat page). With after/limit it pages backwards from
// the cursor; each page still arrives oldest first for display.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r.Context())
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unknown caller"})
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}
	if !caller.IsStaff && caller.ID != userID {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "forbidden"})
		return
	}

	after := r.URL.Query().Get("after")
	limitStr := r.URL.Query().Get("limit")

	var (
		msgs []domain.Message
		next string
	)
	if after == "" && limitStr == "" {
		msgs, err = h.chatSvc.ListByUser(r.Context(), userID)
	} else {
		limit := 50
		if n, convErr := strconv.Atoi(limitStr); convErr == nil {
			limit = n
		}
		msgs, next, err = h.chatSvc.History(r.Context(), userID, after, limit)
	}
	if err != nil {
		if errors.Is(err, postgres.ErrInvalidCursor) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_cursor"})
			return
		}
		slog.Error("handler.GetMessages:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	resp := MessagesResponse{Items: make([]MessageItem, 0, len(msgs)), NextCursor: next}
	for _, m := range msgs {
		resp.Items = append(resp.Items, MessageItem{
			ID:        m.ID,
			UserID:    strconv.FormatInt(m.UserID, 10),
			Sender:    string(m.Sender),
			Message:   m.Text,
			ImageURL:  m.ImageURL,
			IsRead:    m.IsRead,
			CreatedAt: m.CreatedAt.Truncate(time.Millisecond),
			Timestamp: service.FormatTimestamp(m.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /chats/{userID}/read — staff marks the conversation read.
// Idempotent; repeated calls report zero updates.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r.Context())
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unknown caller"})
		return
	}
	if !caller.IsStaff {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "staff only"})
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	updated, err := h.inboxSvc.MarkRead(r.Context(), userID)
	if err != nil {
		slog.Error("handler.MarkRead:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, MarkReadResponse{Updated: updated})
}
