package store

import (
	"context"
	"testing"
	"time"

	"scadenze/internal/core"
)

type countingStore struct {
	templates []core.RecurringTemplate
	listCalls int
}

func (s *countingStore) ListTemplates(context.Context) ([]core.RecurringTemplate, error) {
	s.listCalls++
	return s.templates, nil
}

func (s *countingStore) CreateTemplate(_ context.Context, t core.RecurringTemplate) (string, error) {
	t.ID = "t1"
	s.templates = append(s.templates, t)
	return t.ID, nil
}

func (s *countingStore) ClaimOccurrence(_ context.Context, id string, processed, nextDue core.Date) (bool, error) {
	for i := range s.templates {
		if s.templates[i].ID == id {
			s.templates[i].LastProcessed = processed
			s.templates[i].NextDue = nextDue
			return true, nil
		}
	}
	return false, ErrTemplateNotFound
}

func (s *countingStore) SetActive(_ context.Context, id string, active bool) error {
	for i := range s.templates {
		if s.templates[i].ID == id {
			s.templates[i].Active = active
			return nil
		}
	}
	return ErrTemplateNotFound
}

func TestCachedTemplates_ListIsCached(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{templates: []core.RecurringTemplate{{ID: "t1", Description: "Affitto"}}}
	cached := NewCachedTemplates(inner, time.Minute)

	for range 3 {
		templates, err := cached.ListTemplates(ctx)
		if err != nil {
			t.Fatalf("ListTemplates() error = %v", err)
		}
		if len(templates) != 1 {
			t.Fatalf("ListTemplates() returned %d templates, want 1", len(templates))
		}
	}
	if inner.listCalls != 1 {
		t.Errorf("inner list calls = %d, want 1", inner.listCalls)
	}
}

func TestCachedTemplates_WritesInvalidate(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{templates: []core.RecurringTemplate{{ID: "t1", Active: true}}}
	cached := NewCachedTemplates(inner, time.Minute)

	if _, err := cached.ListTemplates(ctx); err != nil {
		t.Fatalf("ListTemplates() error = %v", err)
	}

	if err := cached.SetActive(ctx, "t1", false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	templates, err := cached.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates() error = %v", err)
	}
	if templates[0].Active {
		t.Error("list served stale active flag after a toggle")
	}

	today := core.NewDate(2024, 3, 15)
	claimed, err := cached.ClaimOccurrence(ctx, "t1", today, core.NewDate(2024, 4, 15))
	if err != nil || !claimed {
		t.Fatalf("ClaimOccurrence() = %v, %v, want true, nil", claimed, err)
	}
	templates, err = cached.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates() error = %v", err)
	}
	if !templates[0].LastProcessed.Equal(today.Time) {
		t.Error("list served stale last-processed date after a claim")
	}

	if inner.listCalls != 3 {
		t.Errorf("inner list calls = %d, want 3", inner.listCalls)
	}
}

func TestCachedTemplates_ListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{templates: []core.RecurringTemplate{{ID: "t1", Description: "Affitto"}}}
	cached := NewCachedTemplates(inner, time.Minute)

	first, err := cached.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates() error = %v", err)
	}
	first[0].Description = "mutated"

	second, err := cached.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates() error = %v", err)
	}
	if second[0].Description != "Affitto" {
		t.Errorf("cached list leaked a caller mutation: %q", second[0].Description)
	}
}
