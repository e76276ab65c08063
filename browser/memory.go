package browser

import "sync"

// MemoryStorage is a concurrency safe in-memory Storage.  It is what tests
// use for both durable and tab storage.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]string

	// failWrites makes every SetItem fail; see FailWrites.
	failWrites bool
}

// ensure that MemoryStorage implements the Storage interface
var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: map[string]string{}}
}

// GetItem implements Storage.GetItem.
func (s *MemoryStorage) GetItem(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// SetItem implements Storage.SetItem.
func (s *MemoryStorage) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return ErrStorage
	}
	s.data[key] = value
	return nil
}

// RemoveItem implements Storage.RemoveItem.
func (s *MemoryStorage) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// FailWrites makes subsequent SetItem calls fail (or succeed again), which
// simulates a full or unavailable store.
func (s *MemoryStorage) FailWrites(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = fail
}
