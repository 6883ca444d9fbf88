package services

import (
	"context"
	"fmt"
	"log/slog"

	"scadenze/internal/core"
	applog "scadenze/internal/log"
	"scadenze/internal/schedule"
	"scadenze/internal/store"
)

// TemplateService manages recurring templates: creation, listing and the
// activation toggle.
type TemplateService struct {
	templates store.TemplateStore
}

func NewTemplateService(templates store.TemplateStore) *TemplateService {
	return &TemplateService{templates: templates}
}

// Create validates and stores a new template. The initial next-due date is
// computed as of today and cached on the stored row; it stays recomputable
// from the template's own fields.
func (s *TemplateService) Create(ctx context.Context, t core.RecurringTemplate, today core.Date) (core.RecurringTemplate, error) {
	if err := t.Validate(); err != nil {
		return core.RecurringTemplate{}, err
	}

	nextDue, err := schedule.NextDueDate(t, today)
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("compute initial next due date: %w", err)
	}
	t.NextDue = nextDue

	id, err := s.templates.CreateTemplate(ctx, t)
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("create template: %w", err)
	}
	t.ID = id

	slog.InfoContext(ctx, "Created recurring template",
		applog.FieldTemplateID, id,
		"description", t.Description,
		applog.FieldFrequency, t.Frequency,
		applog.FieldNextDue, nextDue.String())

	return t, nil
}

// List returns all stored templates.
func (s *TemplateService) List(ctx context.Context) ([]core.RecurringTemplate, error) {
	return s.templates.ListTemplates(ctx)
}

// SetActive flips the template's active flag. Schedule state is untouched:
// deactivating does not clear last-processed, and reactivating resumes from
// wherever the schedule left off.
func (s *TemplateService) SetActive(ctx context.Context, id string, active bool) error {
	if err := s.templates.SetActive(ctx, id, active); err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return nil
}
