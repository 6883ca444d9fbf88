package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scadenze/internal/core"
	"scadenze/internal/store/memory"
)

func monthlyTemplate(description string, nextDue core.Date) core.RecurringTemplate {
	return core.RecurringTemplate{
		Description:   description,
		Category:      "Casa",
		AmountPrimary: decimal.NewNullDecimal(decimal.NewFromInt(100)),
		Frequency:     core.Monthly,
		DayOfMonth:    core.IntPtr(1),
		StartDate:     core.NewDate(2024, 1, 1),
		NextDue:       nextDue,
		Active:        true,
	}
}

func dailyTemplate(description string, nextDue core.Date) core.RecurringTemplate {
	return core.RecurringTemplate{
		Description:   description,
		Category:      "Varie",
		AmountPrimary: decimal.NewNullDecimal(decimal.NewFromInt(3)),
		Frequency:     core.Daily,
		StartDate:     core.NewDate(2024, 1, 1),
		NextDue:       nextDue,
		Active:        true,
	}
}

type recordingPublisher struct {
	mu  sync.Mutex
	ids []string
}

func (p *recordingPublisher) PublishEntrySync(_ context.Context, entryID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, entryID)
	return nil
}

type failingLedger struct {
	inner       *memory.Store
	failOn      string
	failedCalls int
}

func (l *failingLedger) AppendEntry(ctx context.Context, e core.LedgerEntry) error {
	if e.Description == l.failOn {
		l.failedCalls++
		return errors.New("ledger unavailable")
	}
	return l.inner.AppendEntry(ctx, e)
}

func TestProcessAllDue(t *testing.T) {
	ctx := context.Background()
	today := core.NewDate(2024, 3, 15)

	st := memory.New()
	_, err := st.CreateTemplate(ctx, monthlyTemplate("Affitto", today))
	require.NoError(t, err)
	_, err = st.CreateTemplate(ctx, dailyTemplate("Caffè", core.NewDate(2024, 3, 10)))
	require.NoError(t, err)
	_, err = st.CreateTemplate(ctx, monthlyTemplate("Assicurazione", core.NewDate(2024, 4, 1)))
	require.NoError(t, err)
	inactive := monthlyTemplate("Palestra", today)
	inactive.Active = false
	_, err = st.CreateTemplate(ctx, inactive)
	require.NoError(t, err)

	pub := &recordingPublisher{}
	m := NewMaterializer(st, st, pub, time.Second)

	report, err := m.ProcessAllDue(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Due)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 0, report.Skipped)
	assert.Empty(t, report.Failures)
	assert.NoError(t, report.Err())

	entries := st.Entries()
	require.Len(t, entries, 2)
	notes := map[string]string{
		"Affitto": "recurring: monthly",
		"Caffè":   "recurring: daily",
	}
	for _, e := range entries {
		assert.True(t, e.Date.Equal(today.Time), "entry dated %s, want %s", e.Date, today)
		assert.NotEmpty(t, e.ID)
		assert.NotEmpty(t, e.SourceTemplateID)
		assert.Contains(t, e.Notes, notes[e.Description])
	}
	assert.Len(t, pub.ids, 2)

	// Every processed template advanced past today.
	templates, err := st.ListTemplates(ctx)
	require.NoError(t, err)
	for _, tmpl := range templates {
		if !tmpl.Active || tmpl.Description == "Assicurazione" {
			continue
		}
		assert.True(t, tmpl.LastProcessed.Equal(today.Time), "%s last processed %s", tmpl.Description, tmpl.LastProcessed)
		assert.True(t, tmpl.NextDue.After(today), "%s next due %s not after %s", tmpl.Description, tmpl.NextDue, today)
	}

	// A second run on the same day finds nothing due.
	report, err = m.ProcessAllDue(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Due)
	assert.Len(t, st.Entries(), 2)
}

func TestProcessTemplate_SecondClaimSameDayIsRejected(t *testing.T) {
	ctx := context.Background()
	today := core.NewDate(2024, 3, 15)

	st := memory.New()
	id, err := st.CreateTemplate(ctx, monthlyTemplate("Affitto", today))
	require.NoError(t, err)

	m := NewMaterializer(st, st, nil, time.Second)

	templates, err := st.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	tmpl := templates[0]
	require.Equal(t, id, tmpl.ID)

	_, err = m.ProcessTemplate(ctx, tmpl, today)
	require.NoError(t, err)

	_, err = m.ProcessTemplate(ctx, tmpl, today)
	assert.ErrorIs(t, err, ErrOccurrenceClaimed)
	assert.Len(t, st.Entries(), 1)
}

func TestProcessTemplate_NextDueAdvancesMonotonically(t *testing.T) {
	ctx := context.Background()

	st := memory.New()
	_, err := st.CreateTemplate(ctx, monthlyTemplate("Affitto", core.NewDate(2024, 3, 1)))
	require.NoError(t, err)

	m := NewMaterializer(st, st, nil, time.Second)

	days := []core.Date{
		core.NewDate(2024, 3, 1),
		core.NewDate(2024, 4, 1),
		core.NewDate(2024, 5, 20), // a late run still only moves forward
	}

	var prev core.Date
	for _, today := range days {
		templates, err := st.ListTemplates(ctx)
		require.NoError(t, err)
		require.Len(t, templates, 1)

		_, err = m.ProcessTemplate(ctx, templates[0], today)
		require.NoError(t, err)

		templates, err = st.ListTemplates(ctx)
		require.NoError(t, err)
		next := templates[0].NextDue
		assert.True(t, next.After(today), "next due %s not after %s", next, today)
		if !prev.IsZero() {
			assert.True(t, next.After(prev), "next due %s did not advance past %s", next, prev)
		}
		prev = next
	}

	assert.Len(t, st.Entries(), len(days))
}

func TestProcessAllDue_ConcurrentRunsMaterializeOnce(t *testing.T) {
	ctx := context.Background()
	today := core.NewDate(2024, 3, 15)

	st := memory.New()
	_, err := st.CreateTemplate(ctx, monthlyTemplate("Affitto", today))
	require.NoError(t, err)

	// Two independent materializers over the same store, as two worker
	// processes would be. The claim in the store is the only guard between
	// them.
	m1 := NewMaterializer(st, st, nil, time.Second)
	m2 := NewMaterializer(st, st, nil, time.Second)

	var wg sync.WaitGroup
	reports := make([]BatchReport, 2)
	for i, m := range []*Materializer{m1, m2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := m.ProcessAllDue(ctx, today)
			assert.NoError(t, err)
			reports[i] = r
		}()
	}
	wg.Wait()

	assert.Len(t, st.Entries(), 1)
	processed := reports[0].Processed + reports[1].Processed
	assert.Equal(t, 1, processed, "exactly one run materializes the occurrence")
	assert.Empty(t, reports[0].Failures)
	assert.Empty(t, reports[1].Failures)
}

func TestProcessAllDue_FailureDoesNotAbortBatch(t *testing.T) {
	ctx := context.Background()
	today := core.NewDate(2024, 3, 15)

	st := memory.New()
	_, err := st.CreateTemplate(ctx, monthlyTemplate("Affitto", today))
	require.NoError(t, err)
	_, err = st.CreateTemplate(ctx, monthlyTemplate("Bolletta luce", today))
	require.NoError(t, err)
	_, err = st.CreateTemplate(ctx, monthlyTemplate("Spotify", today))
	require.NoError(t, err)

	ledger := &failingLedger{inner: st, failOn: "Bolletta luce"}
	m := NewMaterializer(st, ledger, nil, time.Second)

	report, err := m.ProcessAllDue(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Due)
	assert.Equal(t, 2, report.Processed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "Bolletta luce", report.Failures[0].Description)
	assert.Error(t, report.Err())
	assert.Contains(t, report.Err().Error(), "materialized 2 of 3")

	assert.Len(t, st.Entries(), 2)
	assert.Equal(t, 1, ledger.failedCalls)
}

func TestProcessAllDue_SameDayCallsCollapse(t *testing.T) {
	ctx := context.Background()
	today := core.NewDate(2024, 3, 15)

	st := memory.New()
	for range 5 {
		_, err := st.CreateTemplate(ctx, monthlyTemplate("Affitto", today))
		require.NoError(t, err)
	}

	m := NewMaterializer(st, st, nil, time.Second)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.ProcessAllDue(ctx, today)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// The claim rejects repeats even when the runs do not collapse, so the
	// ledger holds exactly one entry per template either way.
	assert.Len(t, st.Entries(), 5)
}
