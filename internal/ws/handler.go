package ws

import (
	"net/http"
	"net/url"

	"fishka_server/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler upgrades /ws requests and hands the socket to the hub. With
// no ALLOWED_ORIGIN configured, same-host browser origins are accepted
// (plus non-browser clients, which send no Origin at all).
func Handler(hub *Hub, allowedOrigin string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if allowedOrigin != "" {
				return origin == allowedOrigin
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return u.Host == r.Host
		},
	}

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("ws upgrade failed", "error", err, "ip", c.ClientIP())
			return
		}
		hub.Register(newClient(hub, conn, c.Request))
	}
}
