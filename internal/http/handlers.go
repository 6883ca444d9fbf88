package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	applog "scadenze/internal/log"
	"scadenze/internal/store"
)

type templatePayload struct {
	ID              string `json:"id,omitempty"`
	Description     string `json:"description"`
	Category        string `json:"category,omitempty"`
	Subcategory     string `json:"subcategory,omitempty"`
	Account         string `json:"account,omitempty"`
	Notes           string `json:"notes,omitempty"`
	AmountPrimary   string `json:"amount_primary,omitempty"`
	AmountSecondary string `json:"amount_secondary,omitempty"`
	Frequency       string `json:"frequency"`
	DayOfMonth      *int   `json:"day_of_month,omitempty"`
	DayOfWeek       *int   `json:"day_of_week,omitempty"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date,omitempty"`
	LastProcessed   string `json:"last_processed,omitempty"`
	NextDue         string `json:"next_due,omitempty"`
	Active          bool   `json:"active"`
}

type batchPayload struct {
	Due       int            `json:"due"`
	Processed int            `json:"processed"`
	Skipped   int            `json:"skipped"`
	Failures  []batchFailure `json:"failures,omitempty"`
}

type batchFailure struct {
	TemplateID  string `json:"template_id"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error"`
}

type errorPayload struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.templates.List(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list templates", applog.FieldError, err)
		writeJSON(w, http.StatusInternalServerError, errorPayload{Error: "failed to load templates"})
		return
	}

	out := make([]templatePayload, 0, len(templates))
	for _, t := range templates {
		out = append(out, toPayload(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var in templatePayload
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Error: "invalid JSON body"})
		return
	}

	t, err := fromPayload(in)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorPayload{Error: err.Error()})
		return
	}

	created, err := s.templates.Create(r.Context(), t, core.DateOf(time.Now()))
	if err != nil {
		status := http.StatusUnprocessableEntity
		var perr *store.PersistenceError
		if errors.As(err, &perr) {
			slog.ErrorContext(r.Context(), "Failed to persist template", applog.FieldError, err)
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, errorPayload{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, toPayload(created))
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var in struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Error: "invalid JSON body"})
		return
	}

	if err := s.templates.SetActive(r.Context(), id, in.Active); err != nil {
		if errors.Is(err, store.ErrTemplateNotFound) {
			writeJSON(w, http.StatusNotFound, errorPayload{Error: "template not found"})
			return
		}
		slog.ErrorContext(r.Context(), "Failed to toggle template", applog.FieldTemplateID, id, applog.FieldError, err)
		writeJSON(w, http.StatusInternalServerError, errorPayload{Error: "failed to update template"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": in.Active})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.batchTimeout)
	defer cancel()

	report, err := s.materializer.ProcessAllDue(ctx, core.DateOf(time.Now()))
	if err != nil {
		slog.ErrorContext(r.Context(), "Materialization run failed", applog.FieldError, err)
		writeJSON(w, http.StatusInternalServerError, errorPayload{Error: err.Error()})
		return
	}

	out := batchPayload{
		Due:       report.Due,
		Processed: report.Processed,
		Skipped:   report.Skipped,
	}
	for _, f := range report.Failures {
		out.Failures = append(out.Failures, batchFailure{
			TemplateID:  f.TemplateID,
			Description: f.Description,
			Error:       f.Err.Error(),
		})
	}

	// Partial failure still reports the success count so the caller can
	// assess backlog.
	status := http.StatusOK
	if len(report.Failures) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, out)
}

func toPayload(t core.RecurringTemplate) templatePayload {
	return templatePayload{
		ID:              t.ID,
		Description:     t.Description,
		Category:        t.Category,
		Subcategory:     t.Subcategory,
		Account:         t.Account,
		Notes:           t.Notes,
		AmountPrimary:   amountString(t.AmountPrimary),
		AmountSecondary: amountString(t.AmountSecondary),
		Frequency:       string(t.Frequency),
		DayOfMonth:      t.DayOfMonth,
		DayOfWeek:       t.DayOfWeek,
		StartDate:       t.StartDate.String(),
		EndDate:         t.EndDate.String(),
		LastProcessed:   t.LastProcessed.String(),
		NextDue:         t.NextDue.String(),
		Active:          t.Active,
	}
}

func fromPayload(in templatePayload) (core.RecurringTemplate, error) {
	t := core.RecurringTemplate{
		Description: in.Description,
		Category:    in.Category,
		Subcategory: in.Subcategory,
		Account:     in.Account,
		Notes:       in.Notes,
		Frequency:   core.Frequency(in.Frequency),
		DayOfMonth:  in.DayOfMonth,
		DayOfWeek:   in.DayOfWeek,
		Active:      in.Active,
	}

	var err error
	if t.AmountPrimary, err = parseAmount(in.AmountPrimary); err != nil {
		return core.RecurringTemplate{}, err
	}
	if t.AmountSecondary, err = parseAmount(in.AmountSecondary); err != nil {
		return core.RecurringTemplate{}, err
	}
	if in.StartDate != "" {
		if t.StartDate, err = core.ParseDate(in.StartDate); err != nil {
			return core.RecurringTemplate{}, core.ErrInvalidStartDate
		}
	}
	if in.EndDate != "" {
		if t.EndDate, err = core.ParseDate(in.EndDate); err != nil {
			return core.RecurringTemplate{}, errors.New("invalid end date")
		}
	}
	return t, nil
}

func parseAmount(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, core.ErrInvalidAmount
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

func amountString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
