package permcache

import (
	"context"
	"strings"
	"sync"
)

// Store is the key/value backend of the permission cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Watcher is implemented by stores that broadcast changes. The callback receives
// the changed key, or a prefix followed by "*" when a range was removed.
type Watcher interface {
	Watch(ctx context.Context, fn func(key string)) error
}

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string][]byte
	watchers []chan string
}

// NewMemoryStore constructs an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set stores value under key.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	s.mu.Lock()
	s.entries[key] = buf
	s.mu.Unlock()
	s.notify(key)
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	s.notify(key)
	return nil
}

// DeletePrefix removes every key starting with prefix.
func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()
	s.notify(prefix + "*")
	return nil
}

// Len reports the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Watch delivers change notifications until ctx is cancelled.
func (s *MemoryStore) Watch(ctx context.Context, fn func(key string)) error {
	ch := make(chan string, 64)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	go func() {
		defer s.unwatch(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case key := <-ch:
				fn(key)
			}
		}
	}()
	return nil
}

func (s *MemoryStore) unwatch(ch chan string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.watchers {
		if w == ch {
			s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
			return
		}
	}
}

// notify drops the notification for slow watchers.
func (s *MemoryStore) notify(key string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.watchers {
		select {
		case ch <- key:
		default:
		}
	}
}
