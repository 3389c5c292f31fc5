/*
handlers_test.go - HTTP tests for the reconciliation API

Tests for:
- Reconciling posted tables and reading the stored run back
- Error mapping (validation, schema, unknown profile, not found)
- Flat table, adjusted schedule and findings views
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/schedule-recon/factory"
	"github.com/warp/schedule-recon/recon"
	"github.com/warp/schedule-recon/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func setupTestHandler(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, factory.NewRegistry())
	seq := 0
	h.NewID = func() string {
		seq++
		return fmt.Sprintf("run-%d", seq)
	}
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	h.Now = func() time.Time { return base.Add(time.Duration(seq) * time.Minute) }

	return h, NewRouter(h, zerolog.Nop())
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func mismatchRequest() ReconcileRequest {
	return ReconcileRequest{
		Partner: &TableDTO{
			Name:    "partner-april.xlsx",
			Columns: partnerHeader,
			Rows: [][]string{
				{"L1", "1", "2024/04/05", "1000", "800", "200", "9200"},
				{"L1", "2", "2024/05/05", "1000", "810", "190", "8390"},
			},
		},
		LMS: &TableDTO{
			Name:    "lms-april.xlsx",
			Columns: lmsHeader,
			Rows: [][]string{
				{"L1", "1", "2024-04-05", "950", "750", "200", "9200", "Due"},
				{"L1", "3", "2024-06-05", "1000", "820", "180", "7570", "Projected"},
			},
		},
	}
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreateReconciliation(t *testing.T) {
	// GIVEN: a partner and an LMS table that disagree on instalment 1
	// WHEN: posting them
	// THEN: the run is stored and returned with one row per distinct key

	_, router := setupTestHandler(t)

	rec := doJSON(t, router, http.MethodPost, "/api/reconciliations", mismatchRequest())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	run := decodeBody[RunDTO](t, rec)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, factory.DefaultProfileID, run.Profile)
	assert.Equal(t, "partner-april.xlsx", run.PartnerName)
	assert.Equal(t, 3, run.Summary.Rows)
	assert.Equal(t, 1, run.Summary.Mismatched)
	assert.Equal(t, 1, run.Summary.PartnerOnly)
	assert.Equal(t, 1, run.Summary.LMSOnly)

	require.Len(t, run.Rows, 3)
	assert.Equal(t, "Amount Mismatch, Principal Mismatch", run.Rows[0].Remarks)
	assert.Equal(t, "No", run.Rows[0].MissingInstallment)
	assert.Equal(t, "LMS Missing Instalment", run.Rows[1].Remarks)
	assert.Equal(t, "Yes", run.Rows[1].MissingInstallment)
	assert.Equal(t, "Partner Missing Instalment", run.Rows[2].Remarks)

	got := doJSON(t, router, http.MethodGet, "/api/reconciliations/run-1", nil)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, run.Summary, decodeBody[RunDTO](t, got).Summary)
}

func TestCreateReconciliation_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       func() any
		wantStatus int
		wantError  string
	}{
		{
			name:       "malformed json",
			body:       func() any { return "not an object" },
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid JSON",
		},
		{
			name: "lms table missing",
			body: func() any {
				req := mismatchRequest()
				req.LMS = nil
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid request",
		},
		{
			name: "lms without status column",
			body: func() any {
				req := mismatchRequest()
				req.LMS.Columns = partnerHeader
				req.LMS.Rows = nil
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "Reconciliation failed",
		},
		{
			name: "partner without header",
			body: func() any {
				req := mismatchRequest()
				req.Partner.Columns = nil
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "Reconciliation failed",
		},
		{
			name: "unknown profile",
			body: func() any {
				req := mismatchRequest()
				req.Profile = "nope"
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "Reconciliation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, router := setupTestHandler(t)

			rec := doJSON(t, router, http.MethodPost, "/api/reconciliations", tt.body())

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantError, decodeBody[ErrorResponse](t, rec).Error)

			runs, err := h.Store.ListRuns(context.Background(), 0)
			require.NoError(t, err)
			assert.Empty(t, runs, "failed requests store nothing")
		})
	}
}

func TestCreateReconciliation_SchemaErrorNamesColumns(t *testing.T) {
	_, router := setupTestHandler(t)
	req := mismatchRequest()
	req.LMS.Columns = []string{"LAN", "InstalmentNumber", "InstalmentDate", "Amount", "Principal", "Interest"}
	req.LMS.Rows = nil

	rec := doJSON(t, router, http.MethodPost, "/api/reconciliations", req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	details := decodeBody[ErrorResponse](t, rec).Details
	assert.Contains(t, details, "BalanceOutstanding")
	assert.Contains(t, details, "Status")
}

func TestCreateReconciliation_WithSystem(t *testing.T) {
	_, router := setupTestHandler(t)
	req := mismatchRequest()
	req.System = &TableDTO{
		Name:    "system.xlsx",
		Columns: partnerHeader,
		Rows: [][]string{
			{"L1", "1", "2024-04-05", "950", "750", "200", "9200"},
		},
	}

	rec := doJSON(t, router, http.MethodPost, "/api/reconciliations", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	run := decodeBody[RunDTO](t, rec)
	assert.Equal(t, "system.xlsx", run.SystemName)
	assert.Equal(t, "Match", run.Rows[0].SystemRemarks)
	assert.Equal(t, "System Missing Instalment", run.Rows[1].SystemRemarks)
}

// =============================================================================
// READ VIEWS
// =============================================================================

func TestListReconciliations(t *testing.T) {
	_, router := setupTestHandler(t)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/reconciliations", mismatchRequest()).Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/reconciliations?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	runs := decodeBody[[]RunDTO](t, rec)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Empty(t, runs[0].Rows, "listing carries no rows")

	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodGet, "/api/reconciliations?limit=x", nil).Code)
}

func TestGetReconciliation_NotFound(t *testing.T) {
	_, router := setupTestHandler(t)

	for _, path := range []string{
		"/api/reconciliations/missing",
		"/api/reconciliations/missing/table",
		"/api/reconciliations/missing/schedule",
		"/api/reconciliations/missing/findings",
	} {
		rec := doJSON(t, router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestGetReconciliationTable(t *testing.T) {
	_, router := setupTestHandler(t)
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/reconciliations", mismatchRequest()).Code)

	rec := doJSON(t, router, http.MethodGet, "/api/reconciliations/run-1/table", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	tbl := decodeBody[TableDTO](t, rec)
	assert.Equal(t, "LAN", tbl.Columns[0])
	assert.Equal(t, "MissingInstallment", tbl.Columns[len(tbl.Columns)-1])
	require.Len(t, tbl.Rows, 3)
	for _, row := range tbl.Rows {
		assert.Len(t, row, len(tbl.Columns))
	}
}

func TestGetAdjustedSchedule(t *testing.T) {
	_, router := setupTestHandler(t)
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/reconciliations", mismatchRequest()).Code)

	rec := doJSON(t, router, http.MethodGet, "/api/reconciliations/run-1/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rows := decodeBody[[]ScheduleRowDTO](t, rec)
	require.Len(t, rows, 2, "partner-only instalment is not added")
	assert.Equal(t, "800", recon.FormatMoney(rows[0].Principal))
	assert.Equal(t, "1000", recon.FormatMoney(rows[0].Amount))
	// #3 carries from #2's adjusted balance: 8390 − 820
	assert.Equal(t, 3, rows[1].InstalmentNumber)
	assert.Equal(t, "7570", recon.FormatMoney(rows[1].BalanceOutstanding))
}

func TestFindings(t *testing.T) {
	_, router := setupTestHandler(t)
	req := mismatchRequest()
	req.LMS.Rows = append(req.LMS.Rows, []string{"L1", "4", "bad", "1", "1", "0", "0", "Due"})
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/reconciliations", req).Code)

	rec := doJSON(t, router, http.MethodGet, "/api/reconciliations/run-1/findings?kind=MalformedRecord", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	malformed := decodeBody[[]recon.FindingRecord](t, rec)
	require.Len(t, malformed, 1)
	assert.Equal(t, recon.LoanID("L1"), malformed[0].LoanID)

	rec = doJSON(t, router, http.MethodGet, "/api/loans/L1/findings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeBody[[]recon.FindingRecord](t, rec))

	rec = doJSON(t, router, http.MethodGet, "/api/loans/L404/findings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]recon.FindingRecord](t, rec))
}

func TestListProfiles(t *testing.T) {
	_, router := setupTestHandler(t)

	rec := doJSON(t, router, http.MethodGet, "/api/profiles", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	profiles := decodeBody[[]ProfileDTO](t, rec)
	require.Len(t, profiles, 1)
	assert.Equal(t, "2006/01/02", profiles[0].Partner.Dates)
	assert.Equal(t, "2006-01-02", profiles[0].LMS.Dates)
}

func TestHealth(t *testing.T) {
	_, router := setupTestHandler(t)
	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
