package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-process Cache. Values are stored JSON-encoded so that both
// backends behave identically. Expired entries are dropped lazily on read.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry)}
}

func (m *Memory) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache value: %w", err)
	}
	m.mu.Lock()
	m.entries[key] = entry{data: data, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(ctx context.Context, key string, dest any) error {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return ErrMiss
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return ErrMiss
	}
	if err := json.Unmarshal(e.data, dest); err != nil {
		return fmt.Errorf("decoding cache value: %w", err)
	}
	return nil
}

func (m *Memory) Close() error {
	return nil
}
