package ws

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"fishka_server/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 75 * time.Second
	pingPeriod = 50 * time.Second

	maxFrameSize = 16 * 1024
	sendBuffer   = 64
)

// Client is one websocket connection. It implements player.Conn: the
// registries hold it as an opaque handle and never see the wire.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	ip   string

	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, r *http.Request) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		ip:   clientIP(r),
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues one outbound message. A full queue means the client
// cannot keep up; the connection is dropped rather than letting it
// stall the event loop.
func (c *Client) Send(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("outbound marshal failed", "error", err)
		return false
	}
	select {
	case <-c.done:
		return false
	case c.send <- data:
		return true
	default:
		logger.Warn("send queue full, dropping connection", "ip", c.ip)
		c.Close()
		return false
	}
}

// Close tears the socket down. Safe to call more than once and from
// any goroutine.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) RemoteIP() string { return c.ip }

// readPump forwards frames into the hub event loop until the socket
// dies, then posts the disconnect.
func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.hub.Post(func() { c.hub.handleDisconnect(c) })
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read error", "ip", c.ip, "error", err)
			}
			return
		}
		frame := raw
		c.hub.Post(func() { c.hub.handleFrame(c, frame) })
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// clientIP prefers the first X-Forwarded-For hop so rate limits key on
// the real client behind a proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
