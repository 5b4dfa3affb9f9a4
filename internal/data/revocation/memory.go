package revocation

import (
	"context"
	"sync"
	"time"
)

// Memory is process-local; entries are lost on restart.
type Memory struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
	writes  int
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]time.Time{}, now: time.Now}
}

func (m *Memory) Revoke(_ context.Context, jti string, until time.Time) error {
	if jti == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[jti] = until
	m.writes++
	if m.writes%256 == 0 {
		m.pruneLocked()
	}
	return nil
}

func (m *Memory) IsRevoked(_ context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.entries[jti]
	if !ok {
		return false, nil
	}
	if !m.now().Before(until) {
		delete(m.entries, jti)
		return false, nil
	}
	return true, nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) pruneLocked() {
	now := m.now()
	for k, until := range m.entries {
		if !now.Before(until) {
			delete(m.entries, k)
		}
	}
}
