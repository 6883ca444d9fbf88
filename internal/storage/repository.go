package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"scadenze/internal/core"
	applog "scadenze/internal/log"
	"scadenze/internal/store"
)

// SQLiteRepository is the primary template and ledger store. It implements
// store.TemplateStore and store.LedgerStore.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const templateColumns = `id, description, frequency, category, subcategory, start_date,
	amount_primary, amount_secondary, account, notes, day_of_month, day_of_week,
	end_date, last_processed, next_due, active`

// ListTemplates implements store.TemplateStore.
func (r *SQLiteRepository) ListTemplates(ctx context.Context) ([]core.RecurringTemplate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates ORDER BY created_at`)
	if err != nil {
		return nil, store.Persistence("list templates", err)
	}
	defer rows.Close()

	var out []core.RecurringTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, store.Persistence("scan template", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Persistence("list templates", err)
	}
	return out, nil
}

// CreateTemplate implements store.TemplateStore.
func (r *SQLiteRepository) CreateTemplate(ctx context.Context, t core.RecurringTemplate) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_templates
		 (id, description, frequency, category, subcategory, start_date,
		  amount_primary, amount_secondary, account, notes, day_of_month,
		  day_of_week, end_date, last_processed, next_due, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Description, string(t.Frequency), t.Category, t.Subcategory,
		t.StartDate.String(), nullDecimal(t.AmountPrimary), nullDecimal(t.AmountSecondary),
		t.Account, t.Notes, nullInt(t.DayOfMonth), nullInt(t.DayOfWeek),
		nullDate(t.EndDate), nullDate(t.LastProcessed), nullDate(t.NextDue),
		boolToInt(t.Active))
	if err != nil {
		return "", store.Persistence("create template", err)
	}

	slog.InfoContext(ctx, "Template saved to SQLite",
		applog.FieldTemplateID, t.ID,
		"description", t.Description,
		applog.FieldFrequency, t.Frequency)

	return t.ID, nil
}

// ClaimOccurrence implements store.TemplateStore. The guarded UPDATE is the
// cross-process at-most-once barrier: of two writers racing on the same
// overdue template, only the first matches the WHERE clause.
func (r *SQLiteRepository) ClaimOccurrence(ctx context.Context, id string, processed, nextDue core.Date) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_templates
		 SET last_processed = ?, next_due = ?
		 WHERE id = ? AND active = 1
		   AND (last_processed IS NULL OR last_processed < ?)`,
		processed.String(), nullDate(nextDue), id, processed.String())
	if err != nil {
		return false, store.Persistence("claim occurrence", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, store.Persistence("claim occurrence", err)
	}
	if n == 0 {
		// Lost the race, inactive, or unknown id. Distinguish the last case
		// so callers see a real error for bad identifiers.
		var exists int
		err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM recurring_templates WHERE id = ?`, id).Scan(&exists)
		if err != nil {
			return false, store.Persistence("claim occurrence", err)
		}
		if exists == 0 {
			return false, store.ErrTemplateNotFound
		}
		return false, nil
	}
	return true, nil
}

// SetActive implements store.TemplateStore.
func (r *SQLiteRepository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_templates SET active = ? WHERE id = ?`,
		boolToInt(active), id)
	if err != nil {
		return store.Persistence("set active", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.Persistence("set active", err)
	}
	if n == 0 {
		return store.ErrTemplateNotFound
	}

	slog.InfoContext(ctx, "Template active flag updated", applog.FieldTemplateID, id, "active", active)
	return nil
}

// AppendEntry implements store.LedgerStore.
func (r *SQLiteRepository) AppendEntry(ctx context.Context, e core.LedgerEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ledger_entries
		 (id, entry_date, description, category, subcategory,
		  amount_primary, amount_secondary, account, notes, source_template_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Date.String(), e.Description, e.Category, e.Subcategory,
		nullDecimal(e.AmountPrimary), nullDecimal(e.AmountSecondary),
		e.Account, e.Notes, e.SourceTemplateID)
	if err != nil {
		return store.Persistence("append ledger entry", err)
	}

	slog.InfoContext(ctx, "Ledger entry saved to SQLite",
		applog.FieldEntryID, e.ID,
		"description", e.Description,
		"date", e.Date.String(),
		"source_template_id", e.SourceTemplateID)

	return nil
}

// GetEntry returns one ledger entry by id, for the sheet sync worker.
func (r *SQLiteRepository) GetEntry(ctx context.Context, id string) (core.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, entry_date, description, category, subcategory,
		        amount_primary, amount_secondary, account, notes, source_template_id
		 FROM ledger_entries WHERE id = ?`, id)

	var e core.LedgerEntry
	var date string
	var primary, secondary sql.NullString
	err := row.Scan(&e.ID, &date, &e.Description, &e.Category, &e.Subcategory,
		&primary, &secondary, &e.Account, &e.Notes, &e.SourceTemplateID)
	if err == sql.ErrNoRows {
		return core.LedgerEntry{}, fmt.Errorf("ledger entry %s not found", id)
	}
	if err != nil {
		return core.LedgerEntry{}, store.Persistence("get ledger entry", err)
	}
	if e.Date, err = core.ParseDate(date); err != nil {
		return core.LedgerEntry{}, fmt.Errorf("ledger entry %s: bad date %q: %w", id, date, err)
	}
	if e.AmountPrimary, err = scanDecimal(primary); err != nil {
		return core.LedgerEntry{}, fmt.Errorf("ledger entry %s: %w", id, err)
	}
	if e.AmountSecondary, err = scanDecimal(secondary); err != nil {
		return core.LedgerEntry{}, fmt.Errorf("ledger entry %s: %w", id, err)
	}
	return e, nil
}

// PendingEntryIDs returns ids of entries not yet synced to the spreadsheet,
// oldest first.
func (r *SQLiteRepository) PendingEntryIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM ledger_entries WHERE synced = 0 ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, store.Persistence("pending entries", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, store.Persistence("pending entries", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkEntrySynced records that the entry reached the spreadsheet.
func (r *SQLiteRepository) MarkEntrySynced(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE ledger_entries SET synced = 1 WHERE id = ?`, id); err != nil {
		return store.Persistence("mark entry synced", err)
	}
	return nil
}

func scanTemplate(rows *sql.Rows) (core.RecurringTemplate, error) {
	var t core.RecurringTemplate
	var freq, startDate string
	var primary, secondary, endDate, lastProcessed, nextDue sql.NullString
	var dayOfMonth, dayOfWeek sql.NullInt64
	var active int64

	err := rows.Scan(&t.ID, &t.Description, &freq, &t.Category, &t.Subcategory,
		&startDate, &primary, &secondary, &t.Account, &t.Notes,
		&dayOfMonth, &dayOfWeek, &endDate, &lastProcessed, &nextDue, &active)
	if err != nil {
		return core.RecurringTemplate{}, err
	}

	t.Frequency = core.Frequency(freq)
	t.Active = active != 0
	if t.StartDate, err = core.ParseDate(startDate); err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("template %s: bad start date %q: %w", t.ID, startDate, err)
	}
	if t.AmountPrimary, err = scanDecimal(primary); err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("template %s: %w", t.ID, err)
	}
	if t.AmountSecondary, err = scanDecimal(secondary); err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("template %s: %w", t.ID, err)
	}
	t.DayOfMonth = scanInt(dayOfMonth)
	t.DayOfWeek = scanInt(dayOfWeek)
	// Optional dates that fail to parse are left zero rather than failing
	// the whole listing; the calculator treats them as absent.
	t.EndDate = scanDate(endDate)
	t.LastProcessed = scanDate(lastProcessed)
	t.NextDue = scanDate(nextDue)
	return t, nil
}

func scanDecimal(v sql.NullString) (decimal.NullDecimal, error) {
	if !v.Valid || v.String == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("bad amount %q: %w", v.String, err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

func scanInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func scanDate(v sql.NullString) core.Date {
	if !v.Valid || v.String == "" {
		return core.Date{}
	}
	d, err := core.ParseDate(v.String)
	if err != nil {
		return core.Date{}
	}
	return d
}

func nullDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullDate(d core.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
