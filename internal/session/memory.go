package session

import (
	"container/list"
	"context"
	"sync"
	"time"

	"salesmap/internal/metrics"
)

// 文档注释：进程内 LRU 会话存储
// 背景：单实例部署的默认后端；容量满时淘汰最久未访问的会话，读取命中会刷新过期时间。
// 约束：过期项在读取时惰性删除。
type MemoryStore struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	lst  *list.List
	dict map[string]*list.Element
	now  func() time.Time
}

type entry struct {
	id  string
	s   *Session
	exp time.Time
}

func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryStore{cap: capacity, ttl: ttl, lst: list.New(), dict: make(map[string]*list.Element), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.dict[id]; ok {
		it := e.Value.(*entry)
		if m.now().Before(it.exp) {
			it.exp = m.now().Add(m.ttl)
			m.lst.MoveToFront(e)
			metrics.SessionHitsTotal.WithLabelValues("memory").Inc()
			cp := *it.s
			return &cp, nil
		}
		m.lst.Remove(e)
		delete(m.dict, id)
	}
	metrics.SessionMissesTotal.WithLabelValues("memory").Inc()
	return nil, ErrNotFound
}

func (m *MemoryStore) Put(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	exp := m.now().Add(m.ttl)
	if e, ok := m.dict[s.ID]; ok {
		e.Value = &entry{id: s.ID, s: &cp, exp: exp}
		m.lst.MoveToFront(e)
		return nil
	}
	m.dict[s.ID] = m.lst.PushFront(&entry{id: s.ID, s: &cp, exp: exp})
	for m.lst.Len() > m.cap {
		back := m.lst.Back()
		it := back.Value.(*entry)
		delete(m.dict, it.id)
		m.lst.Remove(back)
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.dict[id]; ok {
		m.lst.Remove(e)
		delete(m.dict, id)
	}
	return nil
}

// Len：当前保存的会话数（含尚未清理的过期项）
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lst.Len()
}
