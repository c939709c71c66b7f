package api

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu          sync.RWMutex
	nextID      int64
	collections map[string][]Document
}

// NewMemoryStore returns a process-local document store, used in tests and
// when no database path is configured.
func NewMemoryStore() Store {
	return newMemoryStore()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{collections: map[string][]Document{}}
}

func (s *memoryStore) InsertMany(_ context.Context, collection string, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		s.nextID++
		d.ID = s.nextID
		d.Body = append([]byte(nil), d.Body...)
		s.collections[collection] = append(s.collections[collection], d)
	}
	return nil
}

func page(docs []Document, skip, limit int) []Document {
	if skip >= len(docs) {
		return nil
	}
	end := len(docs)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	return append([]Document(nil), docs[skip:end]...)
}

func (s *memoryStore) FindPage(_ context.Context, collection string, skip, limit int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return page(s.collections[collection], skip, limit), nil
}

func (s *memoryStore) AggregateJoin(_ context.Context, left, right string, skip, limit int) ([]JoinedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lefts := page(s.collections[left], skip, limit)
	out := make([]JoinedDocument, 0, len(lefts))
	for _, l := range lefts {
		j := JoinedDocument{Left: l}
		for _, r := range s.collections[right] {
			if r.ParticipantID == l.ParticipantID {
				j.Right = append(j.Right, r)
			}
		}
		out = append(out, j)
	}
	return out, nil
}

func (s *memoryStore) Ping(context.Context) error { return nil }

func (s *memoryStore) Close() error { return nil }
