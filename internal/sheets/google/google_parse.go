package google

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"scadenze/internal/core"
)

// Column positions within a template row (A..N).
const (
	colDescription = iota
	colFrequency
	colCategory
	colSubcategory
	colStartDate
	colAmountPrimary
	colAmountSecondary
	colAccount
	colNotes
	colDayOfMonth
	colDayOfWeek
	colEndDate
	colLastProcessed
	colActive
)

func parseTemplateRow(rowNum int, cols []string) (core.RecurringTemplate, error) {
	startDate, err := core.ParseDate(colAt(cols, colStartDate))
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("bad start date %q: %w", colAt(cols, colStartDate), err)
	}

	t := core.RecurringTemplate{
		ID:            rowID(rowNum),
		Description:   colAt(cols, colDescription),
		Frequency:     core.Frequency(strings.ToLower(colAt(cols, colFrequency))),
		Category:      colAt(cols, colCategory),
		Subcategory:   colAt(cols, colSubcategory),
		StartDate:     startDate,
		Account:       colAt(cols, colAccount),
		Notes:         colAt(cols, colNotes),
		DayOfMonth:    parseOptionalInt(colAt(cols, colDayOfMonth)),
		DayOfWeek:     parseOptionalInt(colAt(cols, colDayOfWeek)),
		EndDate:       parseOptionalDate(colAt(cols, colEndDate)),
		LastProcessed: parseOptionalDate(colAt(cols, colLastProcessed)),
		Active:        parseActive(colAt(cols, colActive)),
	}

	if t.AmountPrimary, err = parseOptionalAmount(colAt(cols, colAmountPrimary)); err != nil {
		return core.RecurringTemplate{}, err
	}
	if t.AmountSecondary, err = parseOptionalAmount(colAt(cols, colAmountSecondary)); err != nil {
		return core.RecurringTemplate{}, err
	}
	if t.Description == "" {
		return core.RecurringTemplate{}, core.ErrEmptyDescription
	}
	return t, nil
}

func formatTemplateRow(t core.RecurringTemplate) []any {
	return []any{
		t.Description,
		string(t.Frequency),
		t.Category,
		t.Subcategory,
		t.StartDate.String(),
		formatAmount(t.AmountPrimary),
		formatAmount(t.AmountSecondary),
		t.Account,
		t.Notes,
		formatOptionalInt(t.DayOfMonth),
		formatOptionalInt(t.DayOfWeek),
		t.EndDate.String(),
		t.LastProcessed.String(),
		formatActive(t.Active),
	}
}

// Ledger rows use columns A..I: Date, Description, Category, Subcategory,
// AmountPrimary, AmountSecondary, Account, Notes, SourceTemplateID.
func formatEntryRow(e core.LedgerEntry) []any {
	return []any{
		e.Date.String(),
		e.Description,
		e.Category,
		e.Subcategory,
		formatAmount(e.AmountPrimary),
		formatAmount(e.AmountSecondary),
		e.Account,
		e.Notes,
		e.SourceTemplateID,
	}
}

func rowID(rowNum int) string {
	return fmt.Sprintf("row:%d", rowNum)
}

func parseRowID(id string) (int, error) {
	raw, ok := strings.CutPrefix(id, "row:")
	if !ok {
		return 0, fmt.Errorf("bad template id %q", id)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < firstTemplateRow {
		return 0, fmt.Errorf("bad template id %q", id)
	}
	return n, nil
}

// rowFromRange extracts the row number from an A1 range like "Templates!A7:N7".
func rowFromRange(a1 string) (int, bool) {
	if i := strings.IndexByte(a1, '!'); i >= 0 {
		a1 = a1[i+1:]
	}
	if i := strings.IndexByte(a1, ':'); i >= 0 {
		a1 = a1[:i]
	}
	digits := strings.TrimLeftFunc(a1, func(r rune) bool { return r >= 'A' && r <= 'Z' })
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

func colAt(cols []string, idx int) string {
	if idx < 0 || idx >= len(cols) {
		return ""
	}
	return cols[idx]
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func parseOptionalInt(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func formatOptionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func parseOptionalDate(s string) core.Date {
	if s == "" {
		return core.Date{}
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}
	}
	return d
}

func parseOptionalAmount(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	// Spreadsheet locales may use a decimal comma.
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("bad amount %q: %w", s, err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

// formatAmount renders with the parsed scale intact, so a cell written back
// matches what was read ("65.20" stays "65.20", not "65.2").
func formatAmount(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	if exp := d.Decimal.Exponent(); exp < 0 {
		return d.Decimal.StringFixed(-exp)
	}
	return d.Decimal.String()
}

func parseActive(s string) bool {
	return strings.EqualFold(s, "TRUE")
}

func formatActive(active bool) string {
	if active {
		return "TRUE"
	}
	return "FALSE"
}
