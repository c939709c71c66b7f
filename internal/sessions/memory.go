package sessions

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/soaringjerry/Pictopercept/internal/services"
)

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryStore keeps sessions in process memory. States are stored encoded so
// callers never share a pointer with the store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}, ttl: ttl, now: time.Now}
}

func (s *MemoryStore) Load(_ context.Context, sid string) (*services.SessionState, error) {
	s.mu.Lock()
	e, ok := s.entries[sid]
	if ok && s.ttl > 0 && s.now().After(e.expires) {
		delete(s.entries, sid)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var st services.SessionState
	if err := json.Unmarshal(e.data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *MemoryStore) Save(_ context.Context, sid string, st *services.SessionState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sid] = memoryEntry{data: b, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sid)
	return nil
}

// Len reports the number of stored sessions, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ services.SessionStore = (*MemoryStore)(nil)
