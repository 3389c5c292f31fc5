/*
result.go - Reconciliation output

PURPOSE:
  Holds everything one run produces: the joined pairs (one per distinct
  key), the findings, and a summary. Output collaborators consume it
  through two views:

  - Table(): the flat annotated table with a fixed column order
  - AdjustedSchedule(): a fresh copy of the LMS schedule with adjusted
    values applied (satisfied rows copied unchanged)

COLUMN ORDER (compatibility surface):
  LAN, InstalmentNumber,
  partner columns, LMS columns (+ Status_lms),
  adjusted columns, diff columns (Partner-LMS),
  Remarks, MissingInstallment
  [system columns, SystemRemarks]  only when a system schedule was given

SEE ALSO:
  - engine.go: Builds the result
  - api/handlers.go: Serves Table() and AdjustedSchedule()
*/
package recon

import "strconv"

// =============================================================================
// JOINED PAIR
// =============================================================================

type MatchState string

const (
	StatePartnerOnly MatchState = "PartnerOnly"
	StateLMSOnly     MatchState = "LmsOnly"
	StateBoth        MatchState = "Both"
)

// JoinedPair is one row of the reconciliation: the partner and LMS
// records for a key (either may be absent) plus everything derived.
type JoinedPair struct {
	Key     Key               `json:"key"`
	State   MatchState        `json:"state"`
	Partner *InstalmentRecord `json:"partner,omitempty"`
	LMS     *InstalmentRecord `json:"lms,omitempty"`
	System  *InstalmentRecord `json:"system,omitempty"`

	FieldDiffs    []Field `json:"field_diffs,omitempty"`
	Remarks       string  `json:"remarks"`
	SystemRemarks string  `json:"system_remarks,omitempty"`

	// Diffs is Partner − LMS, null when a side is missing.
	Diffs Values `json:"diffs"`

	Adjusted        Values `json:"adjusted"`
	PreviousBalance Money  `json:"previous_balance"`
	Frozen          bool   `json:"frozen"`  // LMS Satisfied
	Changed         bool   `json:"changed"` // adjusted differs from LMS
}

// MissingInstallment is "Yes" for one-sided rows.
func (p JoinedPair) MissingInstallment() string {
	if p.State == StateBoth {
		return MissingInstallmentNo
	}
	return MissingInstallmentYes
}

// IsMatch reports a two-sided row whose five compared fields are equal.
func (p JoinedPair) IsMatch() bool {
	return p.State == StateBoth && len(p.FieldDiffs) == 0
}

// =============================================================================
// RESULT
// =============================================================================

type Result struct {
	Pairs           []JoinedPair             `json:"pairs"`
	Malformed       []*MalformedRecord       `json:"malformed,omitempty"`
	Duplicates      []*DuplicateKeyWarning   `json:"duplicates,omitempty"`
	MissingDemands  []*MissingDemandCount    `json:"missing_demands,omitempty"`
	UnmatchedSystem []*UnmatchedSystemRecord `json:"unmatched_system,omitempty"`
	HasSystem       bool                     `json:"has_system"`
	Summary         Summary                  `json:"summary"`
}

// Summary counts what a run found.
type Summary struct {
	Rows        int                 `json:"rows"`
	Matched     int                 `json:"matched"`
	Mismatched  int                 `json:"mismatched"`
	PartnerOnly int                 `json:"partner_only"`
	LMSOnly     int                 `json:"lms_only"`
	Frozen      int                 `json:"frozen"`
	Changed     int                 `json:"changed"`
	Findings    map[FindingKind]int `json:"findings"`
}

// Findings returns every row-level issue in a stable order:
// malformed, duplicates, unmatched system rows, demand shortfalls.
func (r *Result) Findings() []Finding {
	out := make([]Finding, 0, len(r.Malformed)+len(r.Duplicates)+len(r.UnmatchedSystem)+len(r.MissingDemands))
	for _, f := range r.Malformed {
		out = append(out, f)
	}
	for _, f := range r.Duplicates {
		out = append(out, f)
	}
	for _, f := range r.UnmatchedSystem {
		out = append(out, f)
	}
	for _, f := range r.MissingDemands {
		out = append(out, f)
	}
	return out
}

func (r *Result) summarize() {
	s := Summary{Rows: len(r.Pairs), Findings: make(map[FindingKind]int)}
	for _, p := range r.Pairs {
		switch {
		case p.State == StatePartnerOnly:
			s.PartnerOnly++
		case p.State == StateLMSOnly:
			s.LMSOnly++
		case p.IsMatch():
			s.Matched++
		default:
			s.Mismatched++
		}
		if p.Frozen {
			s.Frozen++
		}
		if p.Changed {
			s.Changed++
		}
	}
	for _, f := range r.Findings() {
		s.Findings[f.Kind()]++
	}
	r.Summary = s
}

// =============================================================================
// FLAT TABLE VIEW
// =============================================================================

// Output column names.
const (
	OutAdjustedAmount     = "AdjustedAmount"
	OutAdjustedPrincipal  = "AdjustedPrincipal"
	OutAdjustedInterest   = "AdjustedInterest"
	OutAdjustedBalance    = "AdjustedBalanceOutstanding"
	OutPrincipalDiff      = "Principal Mismatch (Partner-LMS)"
	OutInterestDiff       = "Interest Mismatch (Partner-LMS)"
	OutAmountDiff         = "Amount Mismatch (Partner-LMS)"
	OutBalanceDiff        = "Outstanding Balance Mismatch"
	OutRemarks            = "Remarks"
	OutMissingInstallment = "MissingInstallment"
	OutSystemRemarks      = "SystemRemarks"
	suffixPartner         = "_partner"
	suffixLMS             = "_lms"
	suffixSystem          = "_system"
)

func sideColumns(suffix string) []string {
	return []string{
		ColInstalmentDate + suffix,
		ColAmount + suffix,
		ColPrincipal + suffix,
		ColInterest + suffix,
		ColBalanceOutstanding + suffix,
	}
}

func sideCells(r *InstalmentRecord) []string {
	if r == nil {
		return []string{"", "", "", "", ""}
	}
	return []string{
		r.InstalmentDate.String(),
		FormatMoney(r.Amount),
		FormatMoney(r.Principal),
		FormatMoney(r.Interest),
		FormatMoney(r.BalanceOutstanding),
	}
}

// Header returns the output column names in order.
func (r *Result) Header() []string {
	cols := []string{ColLAN, ColInstalmentNumber}
	cols = append(cols, sideColumns(suffixPartner)...)
	cols = append(cols, sideColumns(suffixLMS)...)
	cols = append(cols, ColStatus+suffixLMS)
	cols = append(cols,
		OutAdjustedAmount, OutAdjustedPrincipal, OutAdjustedInterest, OutAdjustedBalance,
		OutPrincipalDiff, OutInterestDiff, OutAmountDiff, OutBalanceDiff,
		OutRemarks, OutMissingInstallment,
	)
	if r.HasSystem {
		cols = append(cols, sideColumns(suffixSystem)...)
		cols = append(cols, OutSystemRemarks)
	}
	return cols
}

// Table renders the pairs as string rows matching Header().
func (r *Result) Table() Table {
	t := Table{Name: "reconciliation", Columns: r.Header(), Rows: make([][]string, 0, len(r.Pairs))}
	for _, p := range r.Pairs {
		row := []string{string(p.Key.LoanID), strconv.Itoa(p.Key.Number)}
		row = append(row, sideCells(p.Partner)...)
		row = append(row, sideCells(p.LMS)...)
		status := ""
		if p.LMS != nil {
			status = string(p.LMS.Status)
		}
		row = append(row, status)
		row = append(row,
			FormatMoney(p.Adjusted.Amount),
			FormatMoney(p.Adjusted.Principal),
			FormatMoney(p.Adjusted.Interest),
			FormatMoney(p.Adjusted.BalanceOutstanding),
			FormatMoney(p.Diffs.Principal),
			FormatMoney(p.Diffs.Interest),
			FormatMoney(p.Diffs.Amount),
			FormatMoney(p.Diffs.BalanceOutstanding),
			p.Remarks,
			p.MissingInstallment(),
		)
		if r.HasSystem {
			row = append(row, sideCells(p.System)...)
			row = append(row, p.SystemRemarks)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// =============================================================================
// ADJUSTED LMS SCHEDULE
// =============================================================================

// AdjustedSchedule returns new LMS records carrying the adjusted values.
// Keys that exist only on the partner side are not added.
func (r *Result) AdjustedSchedule() []InstalmentRecord {
	out := make([]InstalmentRecord, 0, len(r.Pairs))
	for _, p := range r.Pairs {
		if p.LMS == nil {
			continue
		}
		rec := *p.LMS
		if !p.Frozen {
			rec.Amount = p.Adjusted.Amount
			rec.Principal = p.Adjusted.Principal
			rec.Interest = p.Adjusted.Interest
			rec.BalanceOutstanding = p.Adjusted.BalanceOutstanding
		}
		out = append(out, rec)
	}
	return out
}
