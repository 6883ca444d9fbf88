package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	"scadenze/internal/store"
)

func testTemplate() core.RecurringTemplate {
	return core.RecurringTemplate{
		Description:   "Affitto",
		AmountPrimary: decimal.NewNullDecimal(decimal.NewFromInt(800)),
		Frequency:     core.Monthly,
		DayOfMonth:    core.IntPtr(1),
		StartDate:     core.NewDate(2024, 1, 1),
		Active:        true,
	}
}

func TestCreateAndList(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.CreateTemplate(ctx, testTemplate())
	if err != nil {
		t.Fatalf("CreateTemplate() error = %v", err)
	}
	if id == "" {
		t.Fatal("CreateTemplate() returned empty id")
	}

	if _, err := s.CreateTemplate(ctx, core.RecurringTemplate{}); err == nil {
		t.Error("CreateTemplate() accepted an invalid template")
	}

	templates, err := s.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates() error = %v", err)
	}
	if len(templates) != 1 || templates[0].ID != id {
		t.Fatalf("ListTemplates() = %v, want the one created template", templates)
	}
}

func TestClaimOccurrence(t *testing.T) {
	ctx := context.Background()
	s := New()
	today := core.NewDate(2024, 3, 15)
	nextDue := core.NewDate(2024, 4, 1)

	id, err := s.CreateTemplate(ctx, testTemplate())
	if err != nil {
		t.Fatalf("CreateTemplate() error = %v", err)
	}

	claimed, err := s.ClaimOccurrence(ctx, id, today, nextDue)
	if err != nil || !claimed {
		t.Fatalf("first claim = %v, %v, want true, nil", claimed, err)
	}

	// The same day can only be claimed once.
	claimed, err = s.ClaimOccurrence(ctx, id, today, nextDue)
	if err != nil || claimed {
		t.Fatalf("repeat claim = %v, %v, want false, nil", claimed, err)
	}

	// A later day claims again.
	claimed, err = s.ClaimOccurrence(ctx, id, core.NewDate(2024, 4, 1), core.NewDate(2024, 5, 1))
	if err != nil || !claimed {
		t.Fatalf("later claim = %v, %v, want true, nil", claimed, err)
	}

	templates, _ := s.ListTemplates(ctx)
	if got := templates[0].LastProcessed.String(); got != "2024-04-01" {
		t.Errorf("LastProcessed = %s, want 2024-04-01", got)
	}
	if got := templates[0].NextDue.String(); got != "2024-05-01" {
		t.Errorf("NextDue = %s, want 2024-05-01", got)
	}

	if _, err := s.ClaimOccurrence(ctx, "missing", today, nextDue); !errors.Is(err, store.ErrTemplateNotFound) {
		t.Errorf("claim on missing id error = %v, want ErrTemplateNotFound", err)
	}

	if err := s.SetActive(ctx, id, false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	claimed, err = s.ClaimOccurrence(ctx, id, core.NewDate(2024, 5, 1), core.NewDate(2024, 6, 1))
	if err != nil || claimed {
		t.Fatalf("claim on inactive template = %v, %v, want false, nil", claimed, err)
	}
}

func TestSetActiveMissing(t *testing.T) {
	s := New()
	if err := s.SetActive(context.Background(), "missing", true); !errors.Is(err, store.ErrTemplateNotFound) {
		t.Errorf("SetActive() error = %v, want ErrTemplateNotFound", err)
	}
}
