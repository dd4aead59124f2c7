package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const DefaultTTL = 10 * time.Minute

// Memory is an in-process cache with per-item expiry.
type Memory struct {
	items  *ttlcache.Cache[string, []byte]
	closed atomic.Bool
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	items := ttlcache.New(
		ttlcache.WithTTL[string, []byte](ttl),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go items.Start()
	return &Memory{items: items}
}

func (m *Memory) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrClosed
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	m.items.Set(key, b, ttl)
	return nil
}

func (m *Memory) Get(ctx context.Context, key string, value any) error {
	if m.closed.Load() {
		return ErrClosed
	}
	item := m.items.Get(key)
	if item == nil {
		return ErrNotFound
	}
	return json.Unmarshal(item.Value(), value)
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.items.DeleteAll()
	return nil
}

// Len is the number of live items.
func (m *Memory) Len() int {
	return m.items.Len()
}

func (m *Memory) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		m.items.Stop()
	}
	return nil
}
