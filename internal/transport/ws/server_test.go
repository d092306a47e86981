package ws

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/webchothuetro/chat-service/internal/domain"
)

type fakeChatSvc struct {
	saveErr   error
	saved     []domain.Message
	saveCalls int
}

func (f *fakeChatSvc) Save(_ context.Context, userID int64, sender domain.Sender, text, imageURL string) (*domain.Message, error) {
	f.saveCalls++
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	text = strings.TrimSpace(text)
	imageURL = strings.TrimSpace(imageURL)
	if text == "" && imageURL == "" {
		return nil, domain.ErrEmptyMessage
	}
	m := domain.Message{
		ID:        int64(len(f.saved) + 1),
		UserID:    userID,
		Sender:    sender,
		CreatedAt: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
	}
	if text != "" {
		m.Text = &text
	}
	if imageURL != "" {
		m.ImageURL = &imageURL
	}
	f.saved = append(f.saved, m)
	return &m, nil
}

type fakeDirectory struct {
	users map[int64]*domain.User
}

func (f *fakeDirectory) Get(_ context.Context, id int64) (*domain.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func newTestServer(chat ChatSvc, users UserDirectory) (*Server, *Hub) {
	hub := NewHub()
	return NewServer(hub, users, chat), hub
}

func directoryWith(ids ...int64) *fakeDirectory {
	d := &fakeDirectory{users: map[int64]*domain.User{}}
	for _, id := range ids {
		d.users[id] = &domain.User{ID: id, Username: "u", IsStaff: false}
	}
	return d
}

func errorCodes(frames []any) []string {
	var out []string
	for _, f := range frames {
		if ef, ok := f.(ErrorFrame); ok {
			out = append(out, ef.Code)
		}
	}
	return out
}

func TestHandleFrameCustomerMessage(t *testing.T) {
	chat := &fakeChatSvc{}
	srv, hub := newTestServer(chat, directoryWith(42))

	customer := &fakeConn{id: "cust"}
	staff := &fakeConn{id: "staff"}
	if err := hub.Register(customer, ConversationRoom(42)); err != nil {
		t.Fatalf("register customer: %v", err)
	}
	if err := hub.Register(staff, ConversationRoom(42), RoomStaffNotifications); err != nil {
		t.Fatalf("register staff: %v", err)
	}

	srv.handleFrame(context.Background(), customer, 42, InboundFrame{
		Message: "Phòng còn không?",
		Sender:  "user",
	})

	if len(chat.saved) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(chat.saved))
	}
	stored := chat.saved[0]
	if stored.UserID != 42 || stored.Sender != domain.SenderUser {
		t.Fatalf("stored message misattributed: %+v", stored)
	}
	if stored.Text == nil || *stored.Text != "Phòng còn không?" {
		t.Fatalf("stored body wrong: %+v", stored.Text)
	}

	// conversation room: full frame for both members
	for _, c := range []*fakeConn{customer, staff} {
		frames := c.received()
		var mf *MessageFrame
		for _, f := range frames {
			if v, ok := f.(MessageFrame); ok {
				mf = &v
				break
			}
		}
		if mf == nil {
			t.Fatalf("conn %s missed the new_message frame: %v", c.id, frames)
		}
		if mf.Type != TypeNewMessage || mf.UserID != "42" || mf.Snippet != "Phòng còn không?" {
			t.Fatalf("unexpected message frame: %+v", mf)
		}
	}

	// staff room: summary frame only for the staff conn
	var nf *NotificationFrame
	for _, f := range staff.received() {
		if v, ok := f.(NotificationFrame); ok {
			nf = &v
			break
		}
	}
	if nf == nil {
		t.Fatal("staff conn missed the admin_notification frame")
	}
	if nf.Type != TypeAdminNotification || nf.Snippet != "Phòng còn không?" {
		t.Fatalf("unexpected notification frame: %+v", nf)
	}
	for _, f := range customer.received() {
		if _, ok := f.(NotificationFrame); ok {
			t.Fatal("customer conn must not receive staff notifications")
		}
	}
}

func TestHandleFrameImageOnly(t *testing.T) {
	chat := &fakeChatSvc{}
	srv, hub := newTestServer(chat, directoryWith(7))

	staff := &fakeConn{id: "staff"}
	if err := hub.Register(staff, ConversationRoom(7), RoomStaffNotifications); err != nil {
		t.Fatalf("register: %v", err)
	}

	srv.handleFrame(context.Background(), staff, 7, InboundFrame{
		Sender:   "admin",
		ImageURL: "https://x/y.png",
	})

	if len(chat.saved) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(chat.saved))
	}
	if chat.saved[0].Text != nil {
		t.Fatalf("image-only message should store no text, got %v", *chat.saved[0].Text)
	}
	if chat.saved[0].ImageURL == nil || *chat.saved[0].ImageURL != "https://x/y.png" {
		t.Fatalf("image url not stored: %+v", chat.saved[0].ImageURL)
	}

	var nf *NotificationFrame
	for _, f := range staff.received() {
		if v, ok := f.(NotificationFrame); ok {
			nf = &v
			break
		}
	}
	if nf == nil {
		t.Fatal("missing admin_notification frame")
	}
	if nf.Snippet != "📷 Ảnh" {
		t.Fatalf("expected image fallback snippet, got %q", nf.Snippet)
	}
}

func TestHandleFrameInvalidSender(t *testing.T) {
	chat := &fakeChatSvc{}
	srv, hub := newTestServer(chat, directoryWith(1))

	c := &fakeConn{id: "c"}
	if err := hub.Register(c, ConversationRoom(1)); err != nil {
		t.Fatalf("register: %v", err)
	}

	srv.handleFrame(context.Background(), c, 1, InboundFrame{Message: "hi", Sender: "robot"})

	if chat.saveCalls != 0 {
		t.Fatal("invalid sender must not reach the store")
	}
	codes := errorCodes(c.received())
	if len(codes) != 1 || codes[0] != CodeProtocolError {
		t.Fatalf("expected protocol_error reply, got %v", codes)
	}
}

func TestHandleFrameEmptyMessage(t *testing.T) {
	chat := &fakeChatSvc{}
	srv, hub := newTestServer(chat, directoryWith(1))

	c := &fakeConn{id: "c"}
	other := &fakeConn{id: "other"}
	if err := hub.Register(c, ConversationRoom(1)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := hub.Register(other, ConversationRoom(1)); err != nil {
		t.Fatalf("register other: %v", err)
	}

	srv.handleFrame(context.Background(), c, 1, InboundFrame{Sender: "user"})

	codes := errorCodes(c.received())
	if len(codes) != 1 || codes[0] != CodeEmptyMessage {
		t.Fatalf("expected empty_message reply, got %v", codes)
	}
	if got := other.received(); len(got) != 0 {
		t.Fatalf("empty frame must not be published, got %v", got)
	}
}

func TestHandleFrameStorageFailureNotPublished(t *testing.T) {
	chat := &fakeChatSvc{saveErr: errors.New("connection refused")}
	srv, hub := newTestServer(chat, directoryWith(42))

	sender := &fakeConn{id: "sender"}
	observer := &fakeConn{id: "observer"}
	staff := &fakeConn{id: "staff"}
	if err := hub.Register(sender, ConversationRoom(42)); err != nil {
		t.Fatalf("register sender: %v", err)
	}
	if err := hub.Register(observer, ConversationRoom(42)); err != nil {
		t.Fatalf("register observer: %v", err)
	}
	if err := hub.Register(staff, RoomStaffNotifications); err != nil {
		t.Fatalf("register staff: %v", err)
	}

	srv.handleFrame(context.Background(), sender, 42, InboundFrame{Message: "hi", Sender: "user"})

	// durability before delivery: no room may see the message
	if got := observer.received(); len(got) != 0 {
		t.Fatalf("observer received frames for an unstored message: %v", got)
	}
	if got := staff.received(); len(got) != 0 {
		t.Fatalf("staff received frames for an unstored message: %v", got)
	}

	frames := sender.received()
	if len(frames) != 1 {
		t.Fatalf("sender should get exactly the error reply, got %v", frames)
	}
	ef, ok := frames[0].(ErrorFrame)
	if !ok || ef.Code != CodeStorageUnavailable || !ef.Retryable {
		t.Fatalf("expected retryable storage_unavailable, got %+v", frames[0])
	}
}

// stallingChatSvc parks the first Save until released, so a second sender
// can race it.
type stallingChatSvc struct {
	mu      sync.Mutex
	nextID  int64
	ids     []int64
	entered chan struct{}
	release chan struct{}
}

func (f *stallingChatSvc) Save(_ context.Context, userID int64, sender domain.Sender, text, _ string) (*domain.Message, error) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.ids = append(f.ids, id)
	f.mu.Unlock()

	if id == 1 {
		close(f.entered)
		<-f.release
	}
	return &domain.Message{
		ID:        id,
		UserID:    userID,
		Sender:    sender,
		Text:      &text,
		CreatedAt: time.Date(2025, 6, 1, 9, 30, 0, int(id), time.UTC),
	}, nil
}

func (f *stallingChatSvc) persisted() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.ids))
	copy(out, f.ids)
	return out
}

func TestConcurrentSendersDeliverInPersistedOrder(t *testing.T) {
	chat := &stallingChatSvc{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	srv, hub := newTestServer(chat, directoryWith(5))

	observer := &fakeConn{id: "observer"}
	if err := hub.Register(observer, ConversationRoom(5)); err != nil {
		t.Fatalf("register observer: %v", err)
	}

	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		srv.handleFrame(context.Background(), a, 5, InboundFrame{Message: "first", Sender: "user"})
	}()
	<-chat.entered

	// second sender races while the first is parked inside its append
	go func() {
		defer wg.Done()
		srv.handleFrame(context.Background(), b, 5, InboundFrame{Message: "second", Sender: "admin"})
	}()
	time.Sleep(50 * time.Millisecond)
	close(chat.release)
	wg.Wait()

	var delivered []int64
	for _, f := range observer.received() {
		if mf, ok := f.(MessageFrame); ok {
			delivered = append(delivered, mf.ID)
		}
	}
	persisted := chat.persisted()
	if len(delivered) != len(persisted) {
		t.Fatalf("expected %d frames, got %d", len(persisted), len(delivered))
	}
	for i := range persisted {
		if delivered[i] != persisted[i] {
			t.Fatalf("delivery order diverged from persisted order: persisted %v, delivered %v", persisted, delivered)
		}
	}
}

func TestHandleFrameUserGone(t *testing.T) {
	chat := &fakeChatSvc{}
	srv, hub := newTestServer(chat, directoryWith()) // empty directory

	c := &fakeConn{id: "c"}
	if err := hub.Register(c, ConversationRoom(9)); err != nil {
		t.Fatalf("register: %v", err)
	}

	srv.handleFrame(context.Background(), c, 9, InboundFrame{Message: "hi", Sender: "user"})

	if chat.saveCalls != 0 {
		t.Fatal("message for a missing user must not be stored")
	}
	codes := errorCodes(c.received())
	if len(codes) != 1 || codes[0] != CodeUserNotFound {
		t.Fatalf("expected user_not_found reply, got %v", codes)
	}
}
