/*
scenarios.go - Demo reconciliation scenarios

PURPOSE:

	Provides pre-built partner/LMS (and optionally system) schedules that
	demonstrate each behavior of the engine. Running a scenario goes
	through the same path as a real request: the run is reconciled with
	the default profile and stored in the run history.

AVAILABLE SCENARIOS:

	exact-match:        Both sides agree on every field
	partner-wins:       Amount and principal differ on an unpaid instalment
	satisfied-frozen:   Same difference, but LMS already marks it Satisfied
	missing-instalments: One key only in LMS, one only in the partner file
	balance-carry:      Multi-instalment loan where the balance is re-derived
	findings:           Duplicate key, malformed row and a demand shortfall
	three-way:          Partner, LMS and system schedules together

USAGE VIA API:

	GET  /api/scenarios
	POST /api/scenarios/partner-wins/run

USAGE VIA CLI:

	reconcile scenarios partner-wins

ADDING NEW SCENARIOS:
 1. Add a Scenario to the 'scenarios' slice
 2. Build its tables with partnerTable/lmsTable/systemTable

SEE ALSO:
  - handlers.go: ListScenarios, RunScenario handlers
  - cmd/reconcile/cmd/scenarios.go: CLI entry point
*/
package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/warp/schedule-recon/factory"
	"github.com/warp/schedule-recon/recon"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// Scenario is a named set of input tables.
type Scenario struct {
	ScenarioDTO
	Partner recon.Table
	LMS     recon.Table
	System  *recon.Table
}

var (
	partnerHeader = []string{"LAN", "InstalmentNumber", "InstalmentDate", "Amount", "Principal", "Interest", "BalanceOutstanding"}
	lmsHeader     = []string{"LAN", "InstalmentNumber", "InstalmentDate", "Amount", "Principal", "Interest", "BalanceOutstanding", "Status"}
)

func partnerTable(rows ...[]string) recon.Table {
	return recon.Table{Name: "partner-schedule", Columns: partnerHeader, Rows: rows}
}

func lmsTable(rows ...[]string) recon.Table {
	return recon.Table{Name: "lms-schedule", Columns: lmsHeader, Rows: rows}
}

func systemTable(rows ...[]string) *recon.Table {
	return &recon.Table{Name: "system-schedule", Columns: lmsHeader, Rows: rows}
}

var scenarios = []Scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "exact-match",
			Name:        "Exact Match",
			Description: "Partner and LMS agree on every compared field",
			Category:    "core",
		},
		Partner: partnerTable(
			[]string{"LN-1001", "1", "2024/04/05", "1000", "800", "200", "9200"},
		),
		LMS: lmsTable(
			[]string{"LN-1001", "1", "2024-04-05", "1000", "800", "200", "9200", "Due"},
		),
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "partner-wins",
			Name:        "Partner Values Adopted",
			Description: "LMS under-records amount and principal on a Due instalment; partner values are adopted",
			Category:    "core",
		},
		Partner: partnerTable(
			[]string{"LN-1002", "1", "2024/04/05", "1000", "800", "200", "9200"},
		),
		LMS: lmsTable(
			[]string{"LN-1002", "1", "2024-04-05", "950", "750", "200", "9200", "Due"},
		),
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "satisfied-frozen",
			Name:        "Satisfied Instalment Frozen",
			Description: "Same difference as partner-wins, but LMS marks the instalment Satisfied so LMS values stand",
			Category:    "core",
		},
		Partner: partnerTable(
			[]string{"LN-1003", "1", "2024/04/05", "1000", "800", "200", "9200"},
		),
		LMS: lmsTable(
			[]string{"LN-1003", "1", "2024-04-05", "950", "750", "200", "9200", "Satisfied"},
		),
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "missing-instalments",
			Name:        "One-Sided Instalments",
			Description: "Instalment 1 exists only in LMS, instalment 2 only in the partner file",
			Category:    "core",
		},
		Partner: partnerTable(
			[]string{"LN-1004", "2", "2024/05/05", "1000", "810", "190", "8390"},
		),
		LMS: lmsTable(
			[]string{"LN-1004", "1", "2024-04-05", "1000", "800", "200", "9200", "Due"},
		),
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "balance-carry",
			Name:        "Balance Carry Forward",
			Description: "First instalment paid; later balances are re-derived from the paid balance and adjusted principal",
			Category:    "adjustment",
		},
		Partner: partnerTable(
			[]string{"LN-2001", "1", "2024/01/10", "1200", "1000", "200", "11000"},
			[]string{"LN-2001", "2", "2024/02/10", "1200", "1010", "190", "9990"},
			[]string{"LN-2001", "3", "2024/03/10", "1200", "1020", "180", "8970"},
			[]string{"LN-2001", "4", "2024/04/10", "1200", "1030", "170", "7940"},
		),
		LMS: lmsTable(
			[]string{"LN-2001", "1", "2024-01-10", "1200", "950", "250", "11050", "Satisfied"},
			[]string{"LN-2001", "2", "2024-02-10", "1200", "1000", "200", "10050", "Due"},
			[]string{"LN-2001", "3", "2024-03-10", "1200", "1020", "180", "9030", "Projected"},
			[]string{"LN-2001", "4", "2024-04-11", "1200", "1030", "170", "8000", "Projected"},
		),
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "findings",
			Name:        "Row-Level Findings",
			Description: "Duplicate partner key, malformed LMS rows and a loan with fewer LMS demands than the partner expects",
			Category:    "findings",
		},
		Partner: partnerTable(
			[]string{"LN-3001", "1", "2024/04/05", "500", "450", "50", "4550"},
			[]string{"LN-3001", "1", "2024/04/05", "510", "450", "60", "4550"},
			[]string{"LN-3001", "2", "2024/05/05", "500", "455", "45", "4095"},
			[]string{"LN-3001", "3", "2024/06/05", "500", "460", "40", "3635"},
			[]string{"LN-3002", "1", "2024/04/05", "300", "250", "50", "2750"},
		),
		LMS: lmsTable(
			[]string{"LN-3001", "1", "2024-04-05", "500", "450", "50", "4550", "Due"},
			[]string{"LN-3001", "2", "05/05/2024", "500", "455", "45", "4095", "Due"},
			[]string{"LN-3002", "1", "2024-04-05", "300", "250", "50", "2750", "Paid"},
		),
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "three-way",
			Name:        "Three-Way Check",
			Description: "System schedule cross-checked against LMS, including a system-only key",
			Category:    "three-way",
		},
		Partner: partnerTable(
			[]string{"LN-4001", "1", "2024/04/05", "1000", "800", "200", "9200"},
			[]string{"LN-4001", "2", "2024/05/05", "1000", "810", "190", "8390"},
		),
		LMS: lmsTable(
			[]string{"LN-4001", "1", "2024-04-05", "1000", "800", "200", "9200", "Satisfied"},
			[]string{"LN-4001", "2", "2024-05-05", "1000", "810", "190", "8390", "Due"},
		),
		System: systemTable(
			[]string{"LN-4001", "1", "2024-04-05", "1000", "800", "200", "9200", "Satisfied"},
			[]string{"LN-4001", "2", "2024-05-05", "990", "810", "180", "8390", "Due"},
			[]string{"LN-4999", "1", "2024-05-05", "100", "90", "10", "900", "Due"},
		),
	},
}

// Scenarios returns the scenario catalogue.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	return out
}

// FindScenario looks a scenario up by id.
func FindScenario(id string) (Scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// RunScenario reconciles a scenario with the default profile and stores the run.
// POST /api/scenarios/{id}/run
func (h *Handler) RunScenario(w http.ResponseWriter, r *http.Request) {
	s, ok := FindScenario(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Scenario not found", fmt.Errorf("unknown scenario %q", chi.URLParam(r, "id")))
		return
	}

	run, err := h.execute(r, Input{Profile: factory.DefaultProfileID, Partner: s.Partner, LMS: s.LMS, System: s.System})
	if err != nil {
		h.writeDomainError(w, r, "Failed to run scenario", err)
		return
	}
	writeJSON(w, http.StatusCreated, NewRunDTO(*run, true))
}
