package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value   string
	expires time.Time
}

// Memory is an in-process Cache used when no Valkey endpoint is configured,
// so the service still boots in a degraded mode (no cross-instance sharing).
type Memory struct {
	mu     sync.Mutex
	values map[string]entry
	hashes map[string]map[string]string
}

// NewMemory constructs an empty Memory cache.
func NewMemory() *Memory {
	return &Memory{values: map[string]entry{}, hashes: map[string]map[string]string{}}
}

// GetString implements coursesage.Cache.
func (m *Memory) GetString(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.values[key]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(m.values, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// SetString implements coursesage.Cache.
func (m *Memory) SetString(_ context.Context, key, value string, ttlSeconds int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expires time.Time
	if ttlSeconds > 0 {
		expires = time.Now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	m.values[key] = entry{value: value, expires: expires}
	return nil
}

// HashGetAll implements coursesage.Cache.
func (m *Memory) HashGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

// HashSet implements coursesage.Cache.
func (m *Memory) HashSet(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

// Delete implements coursesage.Cache.
func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
		delete(m.hashes, k)
	}
	return nil
}
