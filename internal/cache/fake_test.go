package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// memCacher is an in-process Cacher for decorator tests.
type memCacher struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	failGet bool
	failSet bool
}

func newMemCacher() *memCacher {
	return &memCacher{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

var errCacheDown = errors.New("cache down")

func (m *memCacher) Get(_ context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return false, errCacheDown
	}
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memCacher) SetWithTTL(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errCacheDown
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	m.ttls[key] = ttl
	return nil
}

func (m *memCacher) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
