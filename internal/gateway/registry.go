package gateway

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry 在线会话表
type Registry struct {
	sessions *xsync.MapOf[string, *Session]
}

func NewRegistry() *Registry {
	return &Registry{sessions: xsync.NewMapOf[string, *Session]()}
}

func (r *Registry) Add(s *Session) { r.sessions.Store(s.ID(), s) }

func (r *Registry) Remove(id string) { r.sessions.Delete(id) }

func (r *Registry) Get(id string) (*Session, bool) { return r.sessions.Load(id) }

func (r *Registry) Len() int { return r.sessions.Size() }

// Range 遍历会话，f 返回 false 时停止
func (r *Registry) Range(f func(s *Session) bool) {
	r.sessions.Range(func(_ string, s *Session) bool { return f(s) })
}

// Snapshot 全部会话统计，按创建时间排序
func (r *Registry) Snapshot() []SessionStats {
	out := make([]SessionStats, 0, r.sessions.Size())
	r.sessions.Range(func(_ string, s *Session) bool {
		out = append(out, s.Stats())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// QueueDepths 所有会话入站/出站队列中的报文总数
func (r *Registry) QueueDepths() (inbound, outbound int) {
	r.sessions.Range(func(_ string, s *Session) bool {
		inbound += s.inQ.Size()
		outbound += s.outQ.Size()
		return true
	})
	return inbound, outbound
}
