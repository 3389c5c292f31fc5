/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Each scenario is run through the API and its headline outcome checked,
	so the scenarios double as end-to-end tests of the engine.
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/schedule-recon/recon"
)

func runScenario(t *testing.T, id string) RunDTO {
	t.Helper()
	_, router := setupTestHandler(t)
	rec := doJSON(t, router, http.MethodPost, "/api/scenarios/"+id+"/run", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[RunDTO](t, rec)
}

func rowFor(t *testing.T, run RunDTO, n int) RowDTO {
	t.Helper()
	for _, r := range run.Rows {
		if r.Key.Number == n {
			return r
		}
	}
	t.Fatalf("no row for instalment %d", n)
	return RowDTO{}
}

func money(m recon.Money) string { return recon.FormatMoney(m) }

func TestScenario_ExactMatch(t *testing.T) {
	run := runScenario(t, "exact-match")

	require.Len(t, run.Rows, 1)
	assert.Equal(t, "Match", run.Rows[0].Remarks)
	assert.Equal(t, "0", money(run.Rows[0].Diffs.Amount))
}

func TestScenario_PartnerWins(t *testing.T) {
	// GIVEN: LMS Amount=950, Principal=750 on a Due instalment
	// THEN: mismatch listed, AdjustedPrincipal = 800, amount diff = 50
	row := runScenario(t, "partner-wins").Rows[0]

	assert.Contains(t, row.Remarks, "Amount Mismatch")
	assert.Contains(t, row.Remarks, "Principal Mismatch")
	assert.Equal(t, "800", money(row.Adjusted.Principal))
	assert.Equal(t, "50", money(row.Diffs.Amount))
}

func TestScenario_SatisfiedFrozen(t *testing.T) {
	row := runScenario(t, "satisfied-frozen").Rows[0]

	assert.Equal(t, "Amount Mismatch, Principal Mismatch", row.Remarks)
	assert.True(t, row.Frozen)
	assert.Equal(t, "750", money(row.Adjusted.Principal))
	assert.Equal(t, "950", money(row.Adjusted.Amount))
}

func TestScenario_MissingInstalments(t *testing.T) {
	run := runScenario(t, "missing-instalments")

	require.Len(t, run.Rows, 2)
	lmsOnly := rowFor(t, run, 1)
	assert.Equal(t, "Partner Missing Instalment", lmsOnly.Remarks)
	assert.Equal(t, "Yes", lmsOnly.MissingInstallment)
	assert.Equal(t, "1000", money(lmsOnly.Adjusted.Amount))

	partnerOnly := rowFor(t, run, 2)
	assert.Equal(t, "LMS Missing Instalment", partnerOnly.Remarks)
}

func TestScenario_BalanceCarry(t *testing.T) {
	// GIVEN: #1 paid in LMS with balance 11050
	// THEN: each later balance = previous adjusted balance − adjusted principal
	run := runScenario(t, "balance-carry")

	assert.Equal(t, "11050", money(rowFor(t, run, 1).Adjusted.BalanceOutstanding))
	assert.Equal(t, "10040", money(rowFor(t, run, 2).Adjusted.BalanceOutstanding))
	assert.Equal(t, "9020", money(rowFor(t, run, 3).Adjusted.BalanceOutstanding))
	assert.Equal(t, "7990", money(rowFor(t, run, 4).Adjusted.BalanceOutstanding))
	assert.Equal(t, "InstalmentDate Mismatch, BalanceOutstanding Mismatch", rowFor(t, run, 4).Remarks)
	assert.Equal(t, 1, run.Summary.Frozen)
}

func TestScenario_Findings(t *testing.T) {
	run := runScenario(t, "findings")

	assert.Len(t, run.Rows, 4)
	assert.Equal(t, 2, run.Summary.Findings[recon.KindMalformedRecord])
	assert.Equal(t, 1, run.Summary.Findings[recon.KindDuplicateKey])
	assert.Equal(t, 2, run.Summary.Findings[recon.KindMissingDemandCount])
	assert.Len(t, run.Findings, 5)
}

func TestScenario_ThreeWay(t *testing.T) {
	run := runScenario(t, "three-way")

	assert.Equal(t, "Match", rowFor(t, run, 1).SystemRemarks)
	assert.Equal(t, "Amount Mismatch, Interest Mismatch", rowFor(t, run, 2).SystemRemarks)
	assert.Equal(t, 1, run.Summary.Findings[recon.KindUnmatchedSystemRecord])
}

func TestScenario_AllScenariosRunWithoutError(t *testing.T) {
	for _, s := range Scenarios() {
		t.Run(s.ID, func(t *testing.T) {
			run := runScenario(t, s.ID)
			assert.NotEmpty(t, run.Rows)
		})
	}
}

func TestScenario_Unknown(t *testing.T) {
	_, router := setupTestHandler(t)
	rec := doJSON(t, router, http.MethodPost, "/api/scenarios/nope/run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListScenarios(t *testing.T) {
	_, router := setupTestHandler(t)
	rec := doJSON(t, router, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]ScenarioDTO](t, rec), len(scenarios))
}
