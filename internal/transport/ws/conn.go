package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	errConnClosed     = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

// wsConn wraps one gorilla connection. All socket writes happen on the
// write pump goroutine; Send is a non-blocking enqueue so a stalled reader
// can never stall a publisher.
type wsConn struct {
	id     string
	userID int64
	staff  bool

	sock      *websocket.Conn
	send      chan any
	closed    chan struct{}
	closeOnce sync.Once
}

func newWsConn(sock *websocket.Conn, userID int64, staff bool, sendBuffer int) *wsConn {
	return &wsConn{
		id:     uuid.NewString(),
		userID: userID,
		staff:  staff,
		sock:   sock,
		send:   make(chan any, sendBuffer),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(frame any) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.closed:
		return errConnClosed
	default:
		return errSendBufferFull
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.sock.Close()
}

// writePump owns the socket's write side: it drains the send buffer in
// enqueue order and keeps the peer alive with pings.
func (c *wsConn) writePump(pingEvery, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.sock.WriteJSON(frame); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}
