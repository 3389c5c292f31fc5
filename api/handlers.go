/*
handlers.go - HTTP API handlers for the reconciliation service

PURPOSE:
  Exposes the reconciliation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the engine and
  the run store.

ENDPOINTS:
  Reconciliations:
    POST   /api/reconciliations                 Reconcile JSON tables, store the run
    GET    /api/reconciliations                 List runs, newest first (?limit=)
    GET    /api/reconciliations/{id}            Full run: summary, rows, findings
    GET    /api/reconciliations/{id}/table      Flat annotated table
    GET    /api/reconciliations/{id}/schedule   Adjusted LMS schedule
    GET    /api/reconciliations/{id}/findings   Findings (?kind=)

  Loans:
    GET    /api/loans/{loanID}/findings         Findings for a loan across runs

  Profiles:
    GET    /api/profiles                        Configured source profiles

  Scenarios:
    GET    /api/scenarios                       List demo scenarios
    POST   /api/scenarios/{id}/run              Run a demo scenario

ARCHITECTURE:
  Handler embeds a Runner (runner.go), shared with the CLI:
  - Store: Run history (sqlite or memory)
  - Profiles: Source profile registry
  - NewID / Now: Injected for deterministic tests

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Resolve profile, run the engine
  4. Persist the run
  5. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, schema/table errors, unknown profile
  - 404: Run or scenario not found
  - 409: Run id already exists
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenarios
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/warp/schedule-recon/factory"
	"github.com/warp/schedule-recon/recon"
)

const maxBodyBytes = 32 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	*Runner
}

// NewHandler creates a new handler with the given store and profiles.
func NewHandler(store recon.RunStore, profiles *factory.Registry) *Handler {
	return &Handler{Runner: NewRunner(store, profiles)}
}

// execute runs the engine with the request-scoped logger.
func (h *Handler) execute(r *http.Request, in Input) (*recon.Run, error) {
	return h.Run(r.Context(), *hlog.FromRequest(r), in)
}

// =============================================================================
// RECONCILIATION HANDLERS
// =============================================================================

// CreateReconciliation reconciles the posted tables.
// POST /api/reconciliations
func (h *Handler) CreateReconciliation(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	in := Input{Profile: req.Profile, Partner: req.Partner.Table(), LMS: req.LMS.Table()}
	if req.System != nil {
		sys := req.System.Table()
		in.System = &sys
	}

	run, err := h.execute(r, in)
	if err != nil {
		h.writeDomainError(w, r, "Reconciliation failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, NewRunDTO(*run, true))
}

// ListReconciliations returns run summaries, newest first.
// GET /api/reconciliations?limit=20
func (h *Handler) ListReconciliations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", fmt.Errorf("limit must be a non-negative integer, got %q", v))
			return
		}
		limit = n
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, s := range runs {
		dtos[i] = NewRunSummaryDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetReconciliation returns a full run.
// GET /api/reconciliations/{id}
func (h *Handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, NewRunDTO(*run, true))
}

// GetReconciliationTable returns the flat annotated table.
// GET /api/reconciliations/{id}/table
func (h *Handler) GetReconciliationTable(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	t := run.Result.Table()
	t.Name = run.ID
	writeJSON(w, http.StatusOK, NewTableDTO(t))
}

// GetAdjustedSchedule returns the LMS schedule with adjusted values applied.
// GET /api/reconciliations/{id}/schedule
func (h *Handler) GetAdjustedSchedule(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTOs(run.Result.AdjustedSchedule()))
}

// ListRunFindings returns a run's findings.
// GET /api/reconciliations/{id}/findings?kind=MalformedRecord
func (h *Handler) ListRunFindings(w http.ResponseWriter, r *http.Request) {
	kind := recon.FindingKind(r.URL.Query().Get("kind"))
	findings, err := h.Store.ListFindings(r.Context(), chi.URLParam(r, "id"), kind)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list findings", err)
		return
	}
	writeJSON(w, http.StatusOK, findings)
}

// GetLoanFindings returns every finding recorded for a loan.
// GET /api/loans/{loanID}/findings
func (h *Handler) GetLoanFindings(w http.ResponseWriter, r *http.Request) {
	findings, err := h.Store.FindingsByLoan(r.Context(), recon.LoanID(chi.URLParam(r, "loanID")))
	if err != nil {
		h.writeDomainError(w, r, "Failed to list findings", err)
		return
	}
	writeJSON(w, http.StatusOK, findings)
}

func (h *Handler) loadRun(w http.ResponseWriter, r *http.Request) (*recon.Run, bool) {
	run, err := h.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, "Failed to load run", err)
		return nil, false
	}
	if run.Result == nil {
		run.Result = &recon.Result{}
	}
	return run, true
}

// =============================================================================
// PROFILE HANDLERS
// =============================================================================

// ListProfiles returns the configured source profiles.
// GET /api/profiles
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles := h.Profiles.List()
	dtos := make([]ProfileDTO, len(profiles))
	for i, p := range profiles {
		dtos[i] = toProfileDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Health reports liveness.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine and store errors to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case recon.IsNotFound(err):
		status = http.StatusNotFound
	case recon.IsClientError(err), errors.Is(err, ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, recon.ErrRunExists):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg(message)
	}
	writeError(w, status, message, err)
}
