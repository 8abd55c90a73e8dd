package ws

import (
	"encoding/json"
	"sync/atomic"

	"quickchat/internal/metrics"
	"quickchat/internal/router"

	"github.com/rs/zerolog/log"
)

type frame struct {
	data []byte
	aud  router.Audience
}

// Hub 是单房间的广播通道：唯一的 run goroutine 独占客户端集合，
// 对同一连接的投递顺序与 Publish 调用顺序一致。
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	frames     chan frame
	online     int32
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		frames:     make(chan frame, 256),
	}
}

// Publish 把事件序列化后投递给受众内的所有连接。
// 实现 router.Publisher。
func (h *Hub) Publish(v interface{}, aud router.Audience) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("marshal outbound event")
		return
	}
	h.frames <- frame{data: b, aud: aud}
}

// Run 是 hub 的事件循环，必须在独立 goroutine 中启动。
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c.connID] = c
			atomic.StoreInt32(&h.online, int32(len(h.clients)))
			metrics.WsConnections.Inc()
		case c := <-h.unregister:
			if _, ok := h.clients[c.connID]; ok {
				delete(h.clients, c.connID)
				close(c.send)
				atomic.StoreInt32(&h.online, int32(len(h.clients)))
				metrics.WsConnections.Dec()
			}
		case f := <-h.frames:
			for id, c := range h.clients {
				if !f.aud.Includes(id) {
					continue
				}
				select {
				case c.send <- f.data:
				default:
					// 发送缓冲已满的连接直接踢掉，不做重试
					close(c.send)
					delete(h.clients, id)
					atomic.StoreInt32(&h.online, int32(len(h.clients)))
					metrics.WsConnections.Dec()
				}
			}
		}
	}
}

// Online 返回当前连接数，供 REST 接口复用。
func (h *Hub) Online() int { return int(atomic.LoadInt32(&h.online)) }
