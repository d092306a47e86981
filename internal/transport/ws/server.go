package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/webchothuetro/chat-service/internal/domain"
	"github.com/webchothuetro/chat-service/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type ChatSvc interface {
	Save(ctx context.Context, userID int64, sender domain.Sender, text, imageURL string) (*domain.Message, error)
}

type UserDirectory interface {
	Get(ctx context.Context, id int64) (*domain.User, error)
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	users    UserDirectory
	chatSvc  ChatSvc

	pingEvery    time.Duration
	writeTimeout time.Duration
	sendBuffer   int
	maxFrameSize int64

	convMu    sync.Mutex
	convLocks map[int64]*sync.Mutex
}

func NewServer(hub *Hub, users UserDirectory, chat ChatSvc) *Server {
	return &Server{
		hub:     hub,
		users:   users,
		chatSvc: chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery:    15 * time.Second,
		writeTimeout: 5 * time.Second,
		sendBuffer:   64,
		maxFrameSize: 1 << 20,
		convLocks:    make(map[int64]*sync.Mutex),
	}
}

// conversationLock returns the sequencing mutex for one conversation.
// Holding it from append through publish keeps live delivery in persisted
// order. It is not a room-membership lock: the hub stays free, and
// conversations never block each other.
func (s *Server) conversationLock(ownerID int64) *sync.Mutex {
	s.convMu.Lock()
	defer s.convMu.Unlock()
	mu, ok := s.convLocks[ownerID]
	if !ok {
		mu = &sync.Mutex{}
		s.convLocks[ownerID] = mu
	}
	return mu
}

func (s *Server) SetPingInterval(d time.Duration) {
	if d > 0 {
		s.pingEvery = d
	}
}

func (s *Server) SetSendBuffer(n int) {
	if n > 0 {
		s.sendBuffer = n
	}
}

// WS endpoint: GET /ws/chat/{userID}?access_token=...&user_id=...
//
// {userID} is the conversation owner (the customer). The caller is
// identified by user_id: a customer may only open their own conversation;
// staff may open any conversation and additionally join the global
// staff notification room.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if strings.TrimSpace(q.Get("access_token")) == "" {
		http.Error(w, "missing access_token", http.StatusUnauthorized)
		return
	}
	callerID, err := strconv.ParseInt(strings.TrimSpace(q.Get("user_id")), 10, 64)
	if err != nil || callerID <= 0 {
		http.Error(w, "invalid user_id", http.StatusUnauthorized)
		return
	}
	ownerID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || ownerID <= 0 {
		http.Error(w, "invalid conversation user id", http.StatusBadRequest)
		return
	}

	caller, err := s.users.Get(r.Context(), callerID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			http.Error(w, "unknown caller", http.StatusUnauthorized)
			return
		}
		slog.Error("ws caller lookup failed", "user", callerID, "err", err)
		http.Error(w, "user lookup failed", http.StatusInternalServerError)
		return
	}
	if _, err := s.users.Get(r.Context(), ownerID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			http.Error(w, "conversation owner not found", http.StatusNotFound)
			return
		}
		slog.Error("ws owner lookup failed", "user", ownerID, "err", err)
		http.Error(w, "user lookup failed", http.StatusInternalServerError)
		return
	}
	if !caller.IsStaff && caller.ID != ownerID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	rooms := []string{ConversationRoom(ownerID)}
	if caller.IsStaff {
		rooms = append(rooms, RoomStaffNotifications)
	}

	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(sock, caller.ID, caller.IsStaff, s.sendBuffer)
	if err := s.hub.Register(c, rooms...); err != nil {
		slog.Error("ws register failed", "conn", c.ID(), "err", err)
		_ = c.Close()
		return
	}
	slog.Debug("ws connected", "conn", c.ID(), "owner", ownerID, "caller", caller.ID, "staff", caller.IsStaff)

	go c.writePump(s.pingEvery, s.writeTimeout)
	s.readLoop(r.Context(), c, ownerID)

	s.hub.Unregister(c.ID())
	_ = c.Close()
	slog.Debug("ws disconnected", "conn", c.ID(), "owner", ownerID)
}

func (s *Server) readLoop(ctx context.Context, c *wsConn, ownerID int64) {
	defer func() { _ = c.Close() }()

	c.sock.SetReadLimit(s.maxFrameSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			return
		}
		var in InboundFrame
		if err := json.Unmarshal(data, &in); err != nil {
			s.sendError(c, CodeProtocolError, false)
			continue
		}
		s.handleFrame(ctx, c, ownerID, in)
	}
}

// handleFrame runs one inbound frame through the store-then-forward path:
// nothing is published unless the append succeeded. Every failure is
// reported to the sender only and keeps the connection open.
func (s *Server) handleFrame(ctx context.Context, c Conn, ownerID int64, in InboundFrame) {
	sender := domain.Sender(in.Sender)
	if !sender.Valid() {
		s.sendError(c, CodeProtocolError, false)
		return
	}

	if _, err := s.users.Get(ctx, ownerID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.sendError(c, CodeUserNotFound, false)
			return
		}
		slog.Warn("ws owner recheck failed", "owner", ownerID, "err", err)
		s.sendError(c, CodeStorageUnavailable, true)
		return
	}

	// serialize append+publish per conversation so live observers see
	// messages in persisted order
	mu := s.conversationLock(ownerID)
	mu.Lock()
	defer mu.Unlock()

	msg, err := s.chatSvc.Save(ctx, ownerID, sender, in.Message, in.ImageURL)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyMessage):
			s.sendError(c, CodeEmptyMessage, false)
		case errors.Is(err, domain.ErrMessageTooLong):
			s.sendError(c, CodeMessageTooLong, false)
		default:
			slog.Warn("ws message save failed", "owner", ownerID, "err", err)
			s.sendError(c, CodeStorageUnavailable, true)
		}
		return
	}

	var text, image string
	if msg.Text != nil {
		text = *msg.Text
	}
	if msg.ImageURL != nil {
		image = *msg.ImageURL
	}
	userIDStr := strconv.FormatInt(ownerID, 10)
	ts := service.FormatTimestamp(msg.CreatedAt)

	s.hub.Broadcast(ConversationRoom(ownerID), MessageFrame{
		Type:      TypeNewMessage,
		ID:        msg.ID,
		UserID:    userIDStr,
		Sender:    string(msg.Sender),
		Message:   text,
		Snippet:   service.Snippet(text),
		ImageURL:  msg.ImageURL,
		Timestamp: ts,
	})
	s.hub.Broadcast(RoomStaffNotifications, NotificationFrame{
		Type:      TypeAdminNotification,
		UserID:    userIDStr,
		Sender:    string(msg.Sender),
		Snippet:   service.NotifySnippet(text, image),
		Timestamp: ts,
		ImageURL:  msg.ImageURL,
	})
}

func (s *Server) sendError(c Conn, code string, retryable bool) {
	_ = c.Send(ErrorFrame{Type: TypeError, Code: code, Retryable: retryable})
}
