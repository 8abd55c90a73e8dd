package router

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"quickchat/internal/models"
	"quickchat/internal/session"
	"quickchat/internal/store"

	"github.com/rs/zerolog/log"
)

// Store 是路由依赖的持久化接口，便于测试时替换。
type Store interface {
	AppendMessage(name, text string) (*models.Message, error)
	ListRecent(limit int) ([]models.Message, error)
	RecordReadReceipt(messageID uint, reader string) (bool, error)
}

// Publisher 把事件投递给指定受众，由 ws.Hub 实现。
type Publisher interface {
	Publish(v interface{}, aud Audience)
}

// Router 是协议状态机：校验入站事件、落库、决定出站事件及其广播范围。
// 每个事件独立处理，路由自身不保存状态。
type Router struct {
	store        Store
	reg          *session.Registry
	pub          Publisher
	historyLimit int
}

func New(st Store, reg *session.Registry, pub Publisher, historyLimit int) *Router {
	return &Router{store: st, reg: reg, pub: pub, historyLimit: historyLimit}
}

type inbound struct {
	Type      string          `json:"type"`
	Name      string          `json:"name"`
	Text      string          `json:"text"`
	IsTyping  bool            `json:"is_typing"`
	MessageID json.RawMessage `json:"message_id"`
	Reader    string          `json:"reader"`
}

type chatEvent struct {
	Type      string    `json:"type"`
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type historyEvent struct {
	Type     string      `json:"type"`
	Messages []chatEvent `json:"messages"`
}

type systemEvent struct {
	Type string    `json:"type"`
	Text string    `json:"text"`
	TS   time.Time `json:"ts"`
}

type typingEvent struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	IsTyping bool   `json:"is_typing"`
}

type readUpdateEvent struct {
	Type      string `json:"type"`
	MessageID uint   `json:"message_id"`
	Reader    string `json:"reader"`
}

// Handle 处理一条入站事件，返回可观测的处理结果。
// 校验失败只会静默丢弃，绝不向任何客户端暴露错误。
func (r *Router) Handle(connID string, raw []byte) Outcome {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return dropped("", DropBadPayload)
	}
	switch in.Type {
	case "join":
		return r.handleJoin(connID, in)
	case "chat_message":
		return r.handleChat(connID, in)
	case "typing":
		return r.handleTyping(connID, in)
	case "read":
		return r.handleRead(connID, in)
	case "leave":
		return r.handleLeave(in)
	default:
		return dropped(in.Type, DropUnknownEvent)
	}
}

func (r *Router) handleJoin(connID string, in inbound) Outcome {
	name := orAnon(in.Name)
	r.reg.Register(connID, name)

	msgs, err := r.store.ListRecent(r.historyLimit)
	if err != nil {
		log.Error().Err(err).Str("conn_id", connID).Msg("list history")
		return dropped("join", DropStoreError)
	}
	items := make([]chatEvent, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, chatEvent{Type: "chat_message", ID: m.ID, Name: m.Name, Text: m.Text, CreatedAt: m.CreatedAt})
	}
	// 历史只回放给新加入者本人
	r.pub.Publish(historyEvent{Type: "history", Messages: items}, Only(connID))
	r.pub.Publish(systemEvent{Type: "system", Text: name + " joined", TS: time.Now()}, All())
	return accepted("join")
}

func (r *Router) handleChat(connID string, in inbound) Outcome {
	name := orAnon(in.Name)
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return dropped("chat_message", DropEmptyText)
	}
	msg, err := r.store.AppendMessage(name, text)
	if err != nil {
		log.Error().Err(err).Str("conn_id", connID).Msg("append message")
		return dropped("chat_message", DropStoreError)
	}
	// 出站消息必须携带库里分配的 id 和 created_at，后续 read 事件要引用真实 id。
	r.pub.Publish(chatEvent{Type: "chat_message", ID: msg.ID, Name: msg.Name, Text: msg.Text, CreatedAt: msg.CreatedAt}, All())
	return accepted("chat_message")
}

func (r *Router) handleTyping(connID string, in inbound) Outcome {
	// 输入状态不落库，也不回发给发送者自己
	r.pub.Publish(typingEvent{Type: "typing", Name: orAnon(in.Name), IsTyping: in.IsTyping}, AllExcept(connID))
	return accepted("typing")
}

func (r *Router) handleRead(connID string, in inbound) Outcome {
	id, ok := parseMessageID(in.MessageID)
	if !ok {
		return dropped("read", DropBadMessageID)
	}
	reader := strings.TrimSpace(in.Reader)
	if reader == "" {
		return dropped("read", DropEmptyReader)
	}
	_, err := r.store.RecordReadReceipt(id, reader)
	if err != nil {
		if errors.Is(err, store.ErrUnknownMessage) {
			log.Warn().Uint("message_id", id).Str("reader", reader).Msg("receipt for unknown message")
			return dropped("read", DropUnknownMessage)
		}
		log.Error().Err(err).Str("conn_id", connID).Msg("record read receipt")
		return dropped("read", DropStoreError)
	}
	// 重复回执照常重播，迟到的重复点击对所有客户端无害
	r.pub.Publish(readUpdateEvent{Type: "read_update", MessageID: id, Reader: reader}, All())
	return accepted("read")
}

func (r *Router) handleLeave(in inbound) Outcome {
	name := orAnon(in.Name)
	r.pub.Publish(systemEvent{Type: "system", Text: name + " left", TS: time.Now()}, All())
	return accepted("leave")
}

func orAnon(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Anon"
	}
	return name
}

// parseMessageID 接受裸数字或带引号的数字，其余一律视为畸形输入。
func parseMessageID(raw json.RawMessage) (uint, bool) {
	s := strings.TrimSpace(string(raw))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
