// ABOUTME: Bounded set of seen keys for duplicate-event suppression.
// ABOUTME: Insertion-order eviction keeps memory flat on long-lived streams.

package dedupe

import (
	"container/list"
	"sync"
)

// KeySet tracks which keys have been seen, evicting the oldest key once the
// size cap is reached. A key evicted by capacity can be accepted again; the
// cap is sized so that only keys far outside any plausible redelivery window
// are forgotten. Safe for concurrent use.
type KeySet struct {
	mu      sync.RWMutex
	seen    map[string]*list.Element
	order   *list.List // keys in insertion order, oldest at front
	maxSize int
}

// NewKeySet creates a set that holds at most maxSize keys.
func NewKeySet(maxSize int) *KeySet {
	if maxSize < 1 {
		maxSize = 1
	}
	return &KeySet{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Check reports whether the key has been seen.
func (s *KeySet) Check(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[key]
	return ok
}

// CheckAndMark atomically checks for the key and marks it if absent. Returns
// true when the key was already present. Callers use this instead of a
// Check/Mark pair so two deliveries racing on the same key cannot both pass.
func (s *KeySet) CheckAndMark(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[key]; ok {
		return true
	}
	s.markLocked(key)
	return false
}

// Mark records the key as seen, evicting the oldest key at capacity.
func (s *KeySet) Mark(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markLocked(key)
}

// Len returns the number of keys currently held.
func (s *KeySet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

func (s *KeySet) markLocked(key string) {
	if elem, exists := s.seen[key]; exists {
		s.order.MoveToBack(elem)
		return
	}

	if len(s.seen) >= s.maxSize {
		s.evictOldest()
	}
	s.seen[key] = s.order.PushBack(key)
}

// evictOldest removes the oldest key. Must be called with mu held.
func (s *KeySet) evictOldest() {
	front := s.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	s.order.Remove(front)
	delete(s.seen, key)
}
