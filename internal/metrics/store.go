package metrics

import "sync"

// Store holds the latest collected values. The collector writes, renderers
// read copies.
type Store struct {
	mu     sync.RWMutex
	values Snapshot
	seq    uint64
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{values: make(Snapshot)}
}

// Set merges values into the store
func (s *Store) Set(values map[string]Value) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, v := range values {
		s.values[id] = copyValue(v)
	}
	s.seq++
}

// Snapshot returns a copy of the current values. The lock is released before
// the caller touches the copy.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(Snapshot, len(s.values))
	for id, v := range s.values {
		out[id] = copyValue(v)
	}
	return out
}

// Version increments on every Set
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

func copyValue(v Value) Value {
	table, ok := v.(NetworkTable)
	if !ok {
		return v
	}
	out := make(NetworkTable, len(table))
	for k, t := range table {
		out[k] = t
	}
	return out
}
