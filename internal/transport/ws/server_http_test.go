package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/webchothuetro/chat-service/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

func startGateway(t *testing.T, srv *Server) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/ws/chat/{userID}", srv.HandleWS)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func waitForMembers(t *testing.T, hub *Hub, room string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(hub.MembersOf(room)) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("room %s never reached %d members", room, want)
}

func TestMalformedFrameKeepsConnectionOpen(t *testing.T) {
	chat := &fakeChatSvc{}
	srv, _ := newTestServer(chat, directoryWith(5))
	ts := startGateway(t, srv)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/chat/5?access_token=tok&user_id=5"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json{{{")); err != nil {
		t.Fatalf("write malformed frame: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ef ErrorFrame
	if err := conn.ReadJSON(&ef); err != nil {
		t.Fatalf("read error reply: %v", err)
	}
	if ef.Type != TypeError || ef.Code != CodeProtocolError {
		t.Fatalf("expected protocol_error reply, got %+v", ef)
	}
	if chat.saveCalls != 0 {
		t.Fatal("malformed frame must not reach the store")
	}

	// connection stays open: the next valid frame goes through
	if err := conn.WriteJSON(InboundFrame{Message: "hi", Sender: "user"}); err != nil {
		t.Fatalf("write valid frame: %v", err)
	}
	var mf MessageFrame
	if err := conn.ReadJSON(&mf); err != nil {
		t.Fatalf("read new_message after malformed frame: %v", err)
	}
	if mf.Type != TypeNewMessage || mf.Message != "hi" {
		t.Fatalf("unexpected frame after recovery: %+v", mf)
	}
}

func TestConnectForeignConversationForbidden(t *testing.T) {
	srv, _ := newTestServer(&fakeChatSvc{}, directoryWith(5, 6))
	ts := startGateway(t, srv)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/chat/6?access_token=tok&user_id=5"), nil)
	if err == nil {
		_ = conn.Close()
		t.Fatal("customer must not open a foreign conversation")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 handshake rejection, got %+v", resp)
	}
}

func TestCustomerNeverJoinsStaffRoom(t *testing.T) {
	srv, hub := newTestServer(&fakeChatSvc{}, directoryWith(5))
	ts := startGateway(t, srv)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/chat/5?access_token=tok&user_id=5"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForMembers(t, hub, ConversationRoom(5), 1)
	if got := hub.MembersOf(RoomStaffNotifications); len(got) != 0 {
		t.Fatalf("customer session joined the staff room: %d members", len(got))
	}
}

func TestStaffJoinsStaffRoom(t *testing.T) {
	dir := directoryWith(7)
	dir.users[9] = &domain.User{ID: 9, Username: "staff", IsStaff: true}
	srv, hub := newTestServer(&fakeChatSvc{}, dir)
	ts := startGateway(t, srv)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/chat/7?access_token=tok&user_id=9"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForMembers(t, hub, ConversationRoom(7), 1)
	waitForMembers(t, hub, RoomStaffNotifications, 1)
}
