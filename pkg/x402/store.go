package x402

import "sync"

// Store is request-scoped storage shared between the gate's hooks: the
// after-verify hook stashes the operation's result here and the after-settle
// hook reads it back when assembling the final response. One Store exists per
// request; the mutex only matters when a hook fans out internally.
type Store struct {
	mu     sync.Mutex
	values map[string]any
}

// NewStore creates an empty request-scoped store.
func NewStore() *Store {
	return &Store{values: make(map[string]any)}
}

// Set stores a value under key.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Get returns the value under key, or nil.
func (s *Store) Get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}
