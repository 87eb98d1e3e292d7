package ticket

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store is the external ticket store boundary (a spreadsheet-equivalent).
// It is an at-least-once delivery source and an eventually-consistent sink:
// the resolver relies on ticket status, not on the store, to suppress
// duplicate processing.
type Store interface {
	// List returns all known tickets.
	List(ctx context.Context) ([]*Ticket, error)

	// Get returns one ticket or ErrNotFound.
	Get(ctx context.Context, id string) (*Ticket, error)

	// Put upserts a ticket keyed by its id.
	Put(ctx context.Context, t *Ticket) error
}

// MemoryStore is an in-process Store for tests and offline runs.
type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[string]Ticket
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[string]Ticket)}
}

func (s *MemoryStore) List(_ context.Context) ([]*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		copied := t
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	copied := t
	return &copied, nil
}

func (s *MemoryStore) Put(_ context.Context, t *Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = *t
	return nil
}
