// Package session keeps per-thread conversational state across turns.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/danshapiro/finsight/internal/agent"
)

// Record is one thread's snapshot: the running message transcript plus the
// accumulated call history.
type Record struct {
	Messages    []agent.Message    `msgpack:"messages"`
	CallHistory []agent.CallRecord `msgpack:"call_history"`
	UpdatedAt   time.Time          `msgpack:"updated_at"`
}

// Store persists thread snapshots between turns.
type Store interface {
	Get(threadID string) (Record, bool)
	Put(threadID string, rec Record) error
}

// MemoryStore holds msgpack-encoded snapshots in process memory. Encoding
// on Put isolates stored state from later caller mutation. With a positive
// maxThreads the least recently updated thread is evicted on overflow;
// zero means unbounded.
type MemoryStore struct {
	mu         sync.Mutex
	snapshots  map[string][]byte
	updated    map[string]time.Time
	maxThreads int
	now        func() time.Time
}

type Option func(*MemoryStore)

// WithMaxThreads bounds the store to n threads, evicting the least
// recently updated one when full.
func WithMaxThreads(n int) Option {
	return func(s *MemoryStore) { s.maxThreads = n }
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		snapshots: map[string][]byte{},
		updated:   map[string]time.Time{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(threadID string) (Record, bool) {
	s.mu.Lock()
	encoded, ok := s.snapshots[threadID]
	s.mu.Unlock()
	if !ok {
		return Record{}, false
	}
	var rec Record
	if err := msgpack.Unmarshal(encoded, &rec); err != nil {
		return Record{}, false
	}
	return rec, true
}

// Put stores the snapshot atomically; concurrent writers to the same
// thread resolve last writer wins.
func (s *MemoryStore) Put(threadID string, rec Record) error {
	if threadID == "" {
		return fmt.Errorf("session: empty thread id")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now()
	}
	encoded, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.snapshots[threadID]; !exists && s.maxThreads > 0 && len(s.snapshots) >= s.maxThreads {
		s.evictOldestLocked()
	}
	s.snapshots[threadID] = encoded
	s.updated[threadID] = rec.UpdatedAt
	return nil
}

// Len reports the number of stored threads.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

func (s *MemoryStore) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time
	for id, at := range s.updated {
		if oldestID == "" || at.Before(oldestAt) {
			oldestID = id
			oldestAt = at
		}
	}
	if oldestID != "" {
		delete(s.snapshots, oldestID)
		delete(s.updated, oldestID)
	}
}
