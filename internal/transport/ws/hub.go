package ws

import (
	"sync"

	"github.com/webchothuetro/chat-service/internal/domain"
)

type Conn interface {
	ID() string
	Send(frame any) error
	Close() error
}

type session struct {
	conn  Conn
	rooms []string
}

// Hub is the session registry and room router: it tracks live connections,
// their room memberships, and fans frames out to room members. Rooms have
// no persistence; they exist only as long as someone is connected.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]session
	rooms    map[string]map[string]Conn // roomID -> connID -> conn
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]session),
		rooms:    make(map[string]map[string]Conn),
	}
}

func (h *Hub) Register(c Conn, rooms ...string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := c.ID()
	if _, ok := h.sessions[id]; ok {
		return domain.ErrDuplicateSession
	}
	h.sessions[id] = session{conn: c, rooms: rooms}
	for _, room := range rooms {
		rs, ok := h.rooms[room]
		if !ok {
			rs = make(map[string]Conn)
			h.rooms[room] = rs
		}
		rs[id] = c
	}
	return nil
}

// Unregister removes the session and all its memberships. No-op for
// unknown ids, so disconnect paths may call it more than once.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[connID]
	if !ok {
		return
	}
	delete(h.sessions, connID)
	for _, room := range s.rooms {
		if rs, ok := h.rooms[room]; ok {
			delete(rs, connID)
			if len(rs) == 0 {
				delete(h.rooms, room)
			}
		}
	}
}

// MembersOf snapshots the room's live connections. An unknown room is an
// empty room, not an error.
func (h *Hub) MembersOf(roomID string) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rs := h.rooms[roomID]
	out := make([]Conn, 0, len(rs))
	for _, c := range rs {
		out = append(out, c)
	}
	return out
}

// Broadcast delivers a frame to every live member of a room. Each delivery
// is independent: a connection that refuses the frame (closed socket or
// full send buffer) is torn down without affecting the others. The
// membership lock is never held across Send.
func (h *Hub) Broadcast(roomID string, frame any) {
	for _, c := range h.MembersOf(roomID) {
		if err := c.Send(frame); err != nil {
			h.Unregister(c.ID())
			_ = c.Close()
		}
	}
}
