// Package memory provides in-process template and ledger stores for
// development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"scadenze/internal/core"
	"scadenze/internal/store"
)

type Store struct {
	mu        sync.Mutex
	templates map[string]core.RecurringTemplate
	order     []string
	entries   []core.LedgerEntry
}

func New() *Store {
	return &Store{templates: make(map[string]core.RecurringTemplate)}
}

// ListTemplates returns all templates in insertion order.
func (s *Store) ListTemplates(_ context.Context) ([]core.RecurringTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.RecurringTemplate, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.templates[id])
	}
	return out, nil
}

func (s *Store) CreateTemplate(_ context.Context, t core.RecurringTemplate) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.templates[t.ID] = t
	s.order = append(s.order, t.ID)
	return t.ID, nil
}

// ClaimOccurrence performs the compare-and-swap under the store mutex: the
// claim wins only while the stored last-processed date is still behind
// processed and the template is active.
func (s *Store) ClaimOccurrence(_ context.Context, id string, processed, nextDue core.Date) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return false, store.ErrTemplateNotFound
	}
	if !t.Active {
		return false, nil
	}
	if !t.LastProcessed.IsZero() && !t.LastProcessed.Before(processed) {
		return false, nil
	}
	t.LastProcessed = processed
	t.NextDue = nextDue
	s.templates[id] = t
	return true, nil
}

func (s *Store) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return store.ErrTemplateNotFound
	}
	t.Active = active
	s.templates[id] = t
	return nil
}

func (s *Store) AppendEntry(_ context.Context, e core.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// Entries returns a copy of the appended ledger entries, oldest first.
func (s *Store) Entries() []core.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.LedgerEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
