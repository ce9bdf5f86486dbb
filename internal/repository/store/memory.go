package store

import (
	"sync"
	"time"
)

type memoryEntry struct {
	data   []byte
	access time.Time
}

// MemoryStore keeps tiles in process memory. Used for tests and
// ephemeral runs where persistence across restarts is not needed.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[key]
	if !exists {
		return nil, false, nil
	}
	return e.data, true, nil
}

func (s *MemoryStore) Set(key string, data []byte, access time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{data: data, access: access}
	return nil
}

func (s *MemoryStore) Touch(key string, access time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.entries[key]; exists {
		e.access = access
		s.entries[key] = e
	}
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Entries() ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.entries))
	for k, e := range s.entries {
		entries = append(entries, Entry{Key: k, Size: int64(len(e.data)), LastAccess: e.access})
	}
	return entries, nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]memoryEntry)
	return nil
}
