package schedule

import (
	"testing"

	"scadenze/internal/core"
)

func dueTemplate(id string, nextDue core.Date) core.RecurringTemplate {
	return core.RecurringTemplate{
		ID:         id,
		Frequency:  core.Monthly,
		DayOfMonth: core.IntPtr(15),
		StartDate:  core.NewDate(2024, 1, 1),
		NextDue:    nextDue,
		Active:     true,
	}
}

func TestSelectDue(t *testing.T) {
	today := core.NewDate(2024, 3, 20)

	tests := []struct {
		name     string
		template core.RecurringTemplate
		want     bool
	}{
		{
			name:     "next due in the past",
			template: dueTemplate("a", core.NewDate(2024, 3, 15)),
			want:     true,
		},
		{
			name:     "next due today",
			template: dueTemplate("b", today),
			want:     true,
		},
		{
			name:     "next due tomorrow",
			template: dueTemplate("c", core.NewDate(2024, 3, 21)),
			want:     false,
		},
		{
			name: "inactive is never due",
			template: func() core.RecurringTemplate {
				tmpl := dueTemplate("d", core.NewDate(2024, 3, 1))
				tmpl.Active = false
				return tmpl
			}(),
			want: false,
		},
		{
			name: "past end date is never due",
			template: func() core.RecurringTemplate {
				tmpl := dueTemplate("e", core.NewDate(2024, 3, 1))
				tmpl.EndDate = core.NewDate(2024, 3, 19)
				return tmpl
			}(),
			want: false,
		},
		{
			name: "end date today still qualifies",
			template: func() core.RecurringTemplate {
				tmpl := dueTemplate("f", core.NewDate(2024, 3, 1))
				tmpl.EndDate = today
				return tmpl
			}(),
			want: true,
		},
		{
			name: "unschedulable template is never due",
			template: core.RecurringTemplate{
				ID:        "g",
				Frequency: core.Monthly,
				Active:    true,
				// No dates at all: no anchor and no cached next due.
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			due := SelectDue([]core.RecurringTemplate{tt.template}, today)
			if got := len(due) == 1; got != tt.want {
				t.Errorf("SelectDue() selected = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEffectiveNextDue_RecomputesWhenCacheAbsent(t *testing.T) {
	tmpl := core.RecurringTemplate{
		ID:            "a",
		Frequency:     core.Monthly,
		DayOfMonth:    core.IntPtr(15),
		StartDate:     core.NewDate(2024, 1, 1),
		LastProcessed: core.NewDate(2024, 1, 15),
		Active:        true,
	}

	got := EffectiveNextDue(tmpl)
	if want := core.NewDate(2024, 2, 15); !got.Equal(want.Time) {
		t.Errorf("EffectiveNextDue() = %s, want %s", got, want)
	}

	// With the cache present the stored value wins.
	tmpl.NextDue = core.NewDate(2024, 2, 20)
	got = EffectiveNextDue(tmpl)
	if want := core.NewDate(2024, 2, 20); !got.Equal(want.Time) {
		t.Errorf("EffectiveNextDue() = %s, want %s", got, want)
	}
}

func TestSelectDue_RecomputedTemplateIsSelected(t *testing.T) {
	// A template whose cached projection was never persisted is still
	// selectable from its own fields.
	tmpl := core.RecurringTemplate{
		ID:            "a",
		Frequency:     core.Weekly,
		DayOfWeek:     core.IntPtr(1),
		StartDate:     core.NewDate(2024, 1, 1),
		LastProcessed: core.NewDate(2024, 1, 8),
		Active:        true,
	}

	due := SelectDue([]core.RecurringTemplate{tmpl}, core.NewDate(2024, 2, 1))
	if len(due) != 1 {
		t.Fatalf("SelectDue() returned %d templates, want 1", len(due))
	}
}
