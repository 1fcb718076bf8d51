package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process Cache, used when no Redis address is configured.
type Memory struct {
	entries sync.Map // key -> memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	raw, ok := m.entries.Load(key)
	if !ok {
		return "", false, nil
	}
	entry := raw.(memoryEntry)
	if !m.now().Before(entry.expiresAt) {
		m.entries.Delete(key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.entries.Store(key, memoryEntry{value: value, expiresAt: m.now().Add(ttl)})
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.entries.Delete(k)
	}
	return nil
}
