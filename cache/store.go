// Package cache 提供解析结果缓存，支持内存、Redis 和数据库三种存储
package cache

import (
	"context"
	"sync"
	"time"
)

// Entry is one cached payload. Expiry is decided by the reader, not the store.
type Entry struct {
	Key      string        `json:"key"`
	Payload  []byte        `json:"payload"`
	StoredAt time.Time     `json:"storedAt"`
	TTL      time.Duration `json:"ttl"`
}

// Expired reports whether the entry is stale at now.
func (e Entry) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) >= e.TTL
}

// Store is the backing key/value store of a ResolutionCache.
// Load returns (nil, nil) when the key is absent.
type Store interface {
	Load(ctx context.Context, key string) (*Entry, error)
	Save(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore 进程内存储，并发安全，同一个 key 后写覆盖先写
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Load(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	e.Payload = append([]byte(nil), e.Payload...)
	return &e, nil
}

func (s *MemoryStore) Save(_ context.Context, entry Entry) error {
	entry.Payload = append([]byte(nil), entry.Payload...)
	s.mu.Lock()
	s.entries[entry.Key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
