package session

import (
	"context"
	"sync"
	"time"
)

// sweepEvery bounds how often Set scans for expired entries.
const sweepEvery = 128

type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	writes   int
}

type memoryEntry struct {
	data      Data
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Data, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.sessions, key)
		return nil, false
	}
	data := entry.data
	return &data, true
}

func (s *MemoryStore) Set(_ context.Context, key string, data *Data, ttl time.Duration) {
	if data == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if s.writes%sweepEvery == 0 {
		now := time.Now()
		for k, entry := range s.sessions {
			if now.After(entry.expiresAt) {
				delete(s.sessions, k)
			}
		}
	}

	s.sessions[key] = memoryEntry{data: *data, expiresAt: time.Now().Add(ttl)}
}

func (s *MemoryStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}

func (s *MemoryStore) Close() error {
	return nil
}
