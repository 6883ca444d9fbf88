package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scadenze/internal/core"
	"scadenze/internal/services"
	"scadenze/internal/store/memory"
)

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	st := memory.New()
	templates := services.NewTemplateService(st)
	materializer := services.NewMaterializer(st, st, nil, time.Second)
	return NewServer(":0", templates, materializer, time.Minute), st
}

func (s *Server) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := srv.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"ok"`)
}

func TestCreateAndListTemplates(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{
		"description": "Affitto",
		"category": "Casa",
		"amount_primary": "800.00",
		"frequency": "monthly",
		"day_of_month": 1,
		"start_date": "2024-01-01",
		"active": true
	}`
	rr := srv.serve(httptest.NewRequest(http.MethodPost, "/api/templates", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created templatePayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "800", created.AmountPrimary)
	assert.NotEmpty(t, created.NextDue, "creation computes the initial next due date")

	rr = srv.serve(httptest.NewRequest(http.MethodGet, "/api/templates", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var listed []templatePayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "Affitto", listed[0].Description)
}

func TestCreateTemplateValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{
			name: "malformed json",
			body: `{"description":`,
			want: http.StatusBadRequest,
		},
		{
			name: "missing amount",
			body: `{"description":"Affitto","frequency":"monthly","day_of_month":1,"start_date":"2024-01-01"}`,
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "bad amount",
			body: `{"description":"Affitto","amount_primary":"molto","frequency":"monthly","day_of_month":1,"start_date":"2024-01-01"}`,
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "anchor mismatch",
			body: `{"description":"Affitto","amount_primary":"800","frequency":"monthly","day_of_week":1,"start_date":"2024-01-01"}`,
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "bad start date",
			body: `{"description":"Affitto","amount_primary":"800","frequency":"monthly","day_of_month":1,"start_date":"01/01/2024"}`,
			want: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := srv.serve(httptest.NewRequest(http.MethodPost, "/api/templates", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

func TestSetActive(t *testing.T) {
	srv, st := newTestServer(t)

	id, err := st.CreateTemplate(context.Background(), core.RecurringTemplate{
		Description:   "Palestra",
		AmountPrimary: decimal.NewNullDecimal(decimal.NewFromInt(45)),
		Frequency:     core.Monthly,
		DayOfMonth:    core.IntPtr(5),
		StartDate:     core.NewDate(2024, 1, 1),
		Active:        true,
	})
	require.NoError(t, err)

	rr := srv.serve(httptest.NewRequest(http.MethodPut, "/api/templates/"+id+"/active", strings.NewReader(`{"active": false}`)))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	templates, err := st.ListTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.False(t, templates[0].Active)

	rr = srv.serve(httptest.NewRequest(http.MethodPut, "/api/templates/missing/active", strings.NewReader(`{"active": true}`)))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestProcessEndpoint(t *testing.T) {
	srv, st := newTestServer(t)

	today := core.DateOf(time.Now())
	_, err := st.CreateTemplate(context.Background(), core.RecurringTemplate{
		Description:   "Affitto",
		AmountPrimary: decimal.NewNullDecimal(decimal.NewFromInt(800)),
		Frequency:     core.Monthly,
		DayOfMonth:    core.IntPtr(1),
		StartDate:     core.NewDate(2024, 1, 1),
		NextDue:       today,
		Active:        true,
	})
	require.NoError(t, err)

	rr := srv.serve(httptest.NewRequest(http.MethodPost, "/api/process", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var report batchPayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 1, report.Processed)
	assert.Empty(t, report.Failures)
	assert.Len(t, st.Entries(), 1)
}
