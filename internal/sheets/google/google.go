// Package google adapts a Google Spreadsheet as template and ledger storage.
//
// The template sheet uses one fixed 14-column row per template
// (columns A..N): Description, Frequency, Category, Subcategory, StartDate,
// AmountPrimary, AmountSecondary, Account, Notes, DayOfMonth, DayOfWeek,
// EndDate, LastProcessed, Active. Dates are ISO-8601 YYYY-MM-DD and the
// active flag is the literal TRUE or FALSE. The next-due date is a derived
// value and is not persisted here.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"scadenze/internal/core"
	"scadenze/internal/store"
)

const (
	defaultTemplatesSheet = "Templates"
	defaultLedgerSheet    = "Ledger"

	// Template rows start after the header.
	firstTemplateRow = 2
)

type Config struct {
	SpreadsheetID  string
	TemplatesSheet string
	LedgerSheet    string

	// Service account credentials: inline JSON wins over a file path. When
	// both are empty, GOOGLE_APPLICATION_CREDENTIALS is consulted.
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc            *gsheet.Service
	spreadsheetID  string
	templatesSheet string
	ledgerSheet    string

	// Guards the read-check-write in ClaimOccurrence. The spreadsheet has
	// no transactions, so claims are single-writer within this process.
	claimMu sync.Mutex
}

var (
	_ store.TemplateStore = (*Client)(nil)
	_ store.LedgerStore   = (*Client)(nil)
)

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if cfg.TemplatesSheet == "" {
		cfg.TemplatesSheet = defaultTemplatesSheet
	}
	if cfg.LedgerSheet == "" {
		cfg.LedgerSheet = defaultLedgerSheet
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:            svc,
		spreadsheetID:  cfg.SpreadsheetID,
		templatesSheet: cfg.TemplatesSheet,
		ledgerSheet:    cfg.LedgerSheet,
	}, nil
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	credentialsJSON := strings.TrimSpace(cfg.CredentialsJSON)
	credentialsFile := strings.TrimSpace(cfg.CredentialsFile)
	if credentialsJSON == "" && credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var raw []byte
	var err error
	switch {
	case credentialsJSON != "":
		raw = []byte(credentialsJSON)
	case credentialsFile != "":
		raw, err = os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(raw),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ListTemplates implements store.TemplateStore. Rows that cannot be parsed
// are skipped with a warning; one bad row must not hide the rest.
func (c *Client) ListTemplates(ctx context.Context) ([]core.RecurringTemplate, error) {
	rng := fmt.Sprintf("%s!A%d:N", c.templatesSheet, firstTemplateRow)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, store.Persistence("read template sheet", err)
	}

	var out []core.RecurringTemplate
	for i, row := range resp.Values {
		rowNum := firstTemplateRow + i
		t, err := parseTemplateRow(rowNum, toStrings(row))
		if err != nil {
			slog.WarnContext(ctx, "Skipping unparseable template row",
				"sheet", c.templatesSheet, "row", rowNum, "error", err)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// CreateTemplate implements store.TemplateStore. The returned identifier is
// the sheet row reference.
func (c *Client) CreateTemplate(ctx context.Context, t core.RecurringTemplate) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	vr := &gsheet.ValueRange{Values: [][]any{formatTemplateRow(t)}}
	rng := fmt.Sprintf("%s!A:N", c.templatesSheet)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return "", store.Persistence("append template row", err)
	}

	rowNum := firstTemplateRow
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		if n, ok := rowFromRange(resp.Updates.UpdatedRange); ok {
			rowNum = n
		}
	}
	return rowID(rowNum), nil
}

// ClaimOccurrence implements store.TemplateStore for the spreadsheet
// backend. Without transactions the claim is a locked read-check-write:
// re-read the row's LastProcessed and Active cells, verify the occurrence is
// still unclaimed, then write the new LastProcessed. The computed next-due
// date is derived state and is not written to the sheet.
func (c *Client) ClaimOccurrence(ctx context.Context, id string, processed, _ core.Date) (bool, error) {
	rowNum, err := parseRowID(id)
	if err != nil {
		return false, err
	}

	c.claimMu.Lock()
	defer c.claimMu.Unlock()

	rng := fmt.Sprintf("%s!M%d:N%d", c.templatesSheet, rowNum, rowNum)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return false, store.Persistence("read template schedule state", err)
	}
	if len(resp.Values) == 0 {
		return false, store.ErrTemplateNotFound
	}

	cols := toStrings(resp.Values[0])
	lastProcessed := parseOptionalDate(colAt(cols, 0))
	active := parseActive(colAt(cols, 1))
	if !active {
		return false, nil
	}
	if !lastProcessed.IsZero() && !lastProcessed.Before(processed) {
		return false, nil
	}

	vr := &gsheet.ValueRange{Values: [][]any{{processed.String()}}}
	updateRng := fmt.Sprintf("%s!M%d", c.templatesSheet, rowNum)
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, updateRng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return false, store.Persistence("write last processed", err)
	}
	return true, nil
}

// SetActive implements store.TemplateStore.
func (c *Client) SetActive(ctx context.Context, id string, active bool) error {
	rowNum, err := parseRowID(id)
	if err != nil {
		return err
	}

	vr := &gsheet.ValueRange{Values: [][]any{{formatActive(active)}}}
	rng := fmt.Sprintf("%s!N%d", c.templatesSheet, rowNum)
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return store.Persistence("write active flag", err)
	}
	return nil
}

// AppendEntry implements store.LedgerStore.
func (c *Client) AppendEntry(ctx context.Context, e core.LedgerEntry) error {
	vr := &gsheet.ValueRange{Values: [][]any{formatEntryRow(e)}}
	rng := fmt.Sprintf("%s!A:I", c.ledgerSheet)
	if _, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do(); err != nil {
		return store.Persistence("append ledger row", err)
	}

	slog.InfoContext(ctx, "Ledger entry appended to spreadsheet",
		"sheet", c.ledgerSheet,
		"description", e.Description,
		"date", e.Date.String(),
		"source_template_id", e.SourceTemplateID)
	return nil
}
