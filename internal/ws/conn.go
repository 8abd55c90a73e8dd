package ws

import (
	"net/http"
	"time"

	"quickchat/internal/metrics"
	"quickchat/internal/router"
	"quickchat/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	connID string
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve 升级 websocket 连接并接入 hub。连接不做鉴权，
// 昵称完全由客户端通过 join 事件声明。
func Serve(h *Hub, reg *session.Registry, rt *router.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := &Client{hub: h, conn: conn, send: make(chan []byte, 256), connID: uuid.New().String()}
		reg.Register(client.connID, "")
		h.register <- client

		go client.writePump()
		client.readPump(reg, rt)
	}
}

func (c *Client) readPump(reg *session.Registry, rt *router.Router) {
	defer func() {
		reg.Unregister(c.connID)
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1 << 20) // 1MB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		// 一条事件处理完（含落库与广播）才读下一条，保证单连接内的因果顺序
		out := rt.Handle(c.connID, data)
		if !out.Accepted() {
			metrics.EventsDroppedTotal.WithLabelValues(string(out.Reason)).Inc()
			continue
		}
		switch out.Event {
		case "chat_message":
			metrics.WsMessagesTotal.Inc()
		case "read":
			metrics.ReadReceiptsTotal.Inc()
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
