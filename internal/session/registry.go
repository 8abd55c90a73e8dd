package session

import (
	"sort"
	"sync"
	"time"
)

// Participant 是一个在线连接的瞬态会话，进程重启后不保留。
type Participant struct {
	ConnID   string    `json:"conn_id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

// Registry 按连接 id 维护当前在线的参与者，并发安全。
// 注册/注销本身不触发任何广播，广播由事件路由决定。
type Registry struct {
	mu    sync.RWMutex
	parts map[string]Participant
}

func NewRegistry() *Registry {
	return &Registry{parts: make(map[string]Participant)}
}

// Register 添加参与者或更新其昵称。昵称允许重复，不做任何鉴权。
func (r *Registry) Register(connID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.parts[connID]
	if !ok {
		r.parts[connID] = Participant{ConnID: connID, Name: name, JoinedAt: time.Now()}
		return
	}
	p.Name = name
	r.parts[connID] = p
}

// Unregister 移除参与者，connID 不存在时是 no-op。
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.parts, connID)
}

// Name 返回连接当前声明的昵称，未注册时返回空串。
func (r *Registry) Name(connID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.parts[connID].Name
}

// Snapshot 返回按加入时间排序的参与者快照。
func (r *Registry) Snapshot() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Participant, 0, len(r.parts))
	for _, p := range r.parts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.parts)
}
