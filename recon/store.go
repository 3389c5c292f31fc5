/*
store.go - Persistence interface for reconciliation runs

PURPOSE:
  The engine itself is stateless. Callers that want an audit trail of
  what was reconciled (the API and the CLI) record each run through a
  RunStore. Different implementations use SQLite or memory.

APPEND-ONLY CONTRACT:
  Runs are written once and never updated. Re-running a reconciliation
  produces a new run with a new id.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - recon/store/memory.go: In-memory for tests and one-off CLI runs

SEE ALSO:
  - result.go: The Result persisted inside a Run
*/
package recon

import (
	"context"
	"time"
)

// Run is one recorded reconciliation.
type Run struct {
	ID          string    `json:"id"`
	Profile     string    `json:"profile"`
	PartnerName string    `json:"partner_name"`
	LMSName     string    `json:"lms_name"`
	SystemName  string    `json:"system_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Result      *Result   `json:"result"`
}

// RunSummary is the listing view of a run, without the rows.
type RunSummary struct {
	ID          string    `json:"id"`
	Profile     string    `json:"profile"`
	PartnerName string    `json:"partner_name"`
	LMSName     string    `json:"lms_name"`
	SystemName  string    `json:"system_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Summary     Summary   `json:"summary"`
}

func (r Run) Summarize() RunSummary {
	s := RunSummary{
		ID:          r.ID,
		Profile:     r.Profile,
		PartnerName: r.PartnerName,
		LMSName:     r.LMSName,
		SystemName:  r.SystemName,
		CreatedAt:   r.CreatedAt,
	}
	if r.Result != nil {
		s.Summary = r.Result.Summary
	}
	return s
}

// FindingRecord is the flattened, queryable form of a Finding.
type FindingRecord struct {
	RunID   string      `json:"run_id"`
	Seq     int         `json:"seq"`
	Kind    FindingKind `json:"kind"`
	LoanID  LoanID      `json:"loan_id,omitempty"`
	Message string      `json:"message"`
}

// FindingRecords flattens the run's findings in Result.Findings order.
func (r Run) FindingRecords() []FindingRecord {
	if r.Result == nil {
		return nil
	}
	findings := r.Result.Findings()
	out := make([]FindingRecord, len(findings))
	for i, f := range findings {
		out[i] = FindingRecord{RunID: r.ID, Seq: i + 1, Kind: f.Kind(), LoanID: f.Loan(), Message: f.Error()}
	}
	return out
}

// RunStore persists runs.
type RunStore interface {
	// SaveRun stores a new run. The id must be unique.
	SaveRun(ctx context.Context, run Run) error

	// GetRun returns ErrRunNotFound for unknown ids.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns summaries, newest first. limit <= 0 means no limit.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)

	// ListFindings returns a run's findings, optionally of one kind.
	ListFindings(ctx context.Context, runID string, kind FindingKind) ([]FindingRecord, error)

	// FindingsByLoan returns every finding for a loan across runs, newest
	// run first.
	FindingsByLoan(ctx context.Context, loan LoanID) ([]FindingRecord, error)
}
