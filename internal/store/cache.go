package store

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"scadenze/internal/core"
)

const templateListKey = "templates"

// CachedTemplates decorates a TemplateStore with a short-lived cache of the
// template list. Every write through the decorator invalidates the cache, so
// a read after a materialization or a toggle always sees fresh state.
type CachedTemplates struct {
	inner TemplateStore
	cache *gocache.Cache
}

// NewCachedTemplates wraps inner with a list cache holding entries for ttl.
func NewCachedTemplates(inner TemplateStore, ttl time.Duration) *CachedTemplates {
	return &CachedTemplates{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (s *CachedTemplates) ListTemplates(ctx context.Context) ([]core.RecurringTemplate, error) {
	if v, ok := s.cache.Get(templateListKey); ok {
		cached := v.([]core.RecurringTemplate)
		out := make([]core.RecurringTemplate, len(cached))
		copy(out, cached)
		return out, nil
	}
	templates, err := s.inner.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(templateListKey, templates, gocache.DefaultExpiration)
	out := make([]core.RecurringTemplate, len(templates))
	copy(out, templates)
	return out, nil
}

func (s *CachedTemplates) CreateTemplate(ctx context.Context, t core.RecurringTemplate) (string, error) {
	id, err := s.inner.CreateTemplate(ctx, t)
	if err == nil {
		s.Invalidate()
	}
	return id, err
}

func (s *CachedTemplates) ClaimOccurrence(ctx context.Context, id string, processed, nextDue core.Date) (bool, error) {
	claimed, err := s.inner.ClaimOccurrence(ctx, id, processed, nextDue)
	if claimed {
		s.Invalidate()
	}
	return claimed, err
}

func (s *CachedTemplates) SetActive(ctx context.Context, id string, active bool) error {
	err := s.inner.SetActive(ctx, id, active)
	if err == nil {
		s.Invalidate()
	}
	return err
}

// Invalidate drops the cached template list.
func (s *CachedTemplates) Invalidate() {
	s.cache.Delete(templateListKey)
}
