package audit

import (
	"context"
	"sync"
)

const DefaultMemoryLimit = 1000

// Memory is an in-process Recorder and Reader, used when no database is configured.
// It keeps the last limit entries across all rooms and overwrites the oldest after that.
type Memory struct {
	mu   sync.RWMutex
	buf  []Entry
	next int // slot the next entry goes into
	n    int // entries held, at most len(buf)
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Memory{buf: make([]Entry, limit)}
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buf[m.next] = e
	m.next = (m.next + 1) % len(m.buf)
	if m.n < len(m.buf) {
		m.n++
	}
	return nil
}

func (m *Memory) History(_ context.Context, room string, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Entry{}
	for i := 0; i < m.n && len(out) < limit; i++ {
		e := m.buf[(m.next-1-i+len(m.buf))%len(m.buf)]
		if e.Room == room {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len reports how many entries are held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.n
}
