/*
Package recon provides the loan schedule reconciliation engine.

PURPOSE:
  Aligns a partner repayment schedule with the internal loan-management
  system (LMS) schedule for the same loans, classifies every instalment
  as matched, mismatched or one-sided, and derives the authoritative
  adjusted values for instalments that have not been paid yet.
  Optionally a third "system" schedule is cross-checked against LMS.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: nullable fixed-point decimal (empty cell = null)
  - Key: (LoanID, InstalmentNumber), the join key across schedules
  - Status: Due / Projected / Satisfied (LMS side only)
  - InstalmentRecord: one normalized schedule row

DESIGN PRINCIPLES:
  1. Immutability: input records are never modified, adjustment produces
     new values next to the originals
  2. Precision: decimal.Decimal everywhere, so exact equality is meaningful
  3. Satisfied history is frozen: paid instalments are never rewritten
  4. Partial failure: bad rows become findings, they never abort a run

USAGE:
  engine := recon.NewEngine(recon.WithLogger(logger))
  result, err := engine.Reconcile(
      recon.Source{Config: recon.DefaultPartnerConfig(), Table: partnerTable},
      recon.Source{Config: recon.DefaultLMSConfig(), Table: lmsTable},
  )

SEE ALSO:
  - table.go: Tabular boundary and row decoding
  - engine.go: Reconcile pipeline
  - adjust.go: Adjustment policy and balance carry
*/
package recon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Nullable decimal amount
// =============================================================================

// Money is a monetary amount that may be absent. An empty cell in the
// input yields a null Money, not a parse error.
type Money = decimal.NullDecimal

// NullMoney is the absent amount.
var NullMoney = Money{}

// NewMoney wraps a decimal as a present amount.
func NewMoney(d decimal.Decimal) Money { return Money{Decimal: d, Valid: true} }

// MoneyFromInt is a convenience constructor used by fixtures and tests.
func MoneyFromInt(v int64) Money { return NewMoney(decimal.NewFromInt(v)) }

// MustMoney parses s and panics on error. Intended for fixtures only.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// groupedNumber matches a number whose integer part is split into
// thousands with commas, e.g. "12,345.67".
var groupedNumber = regexp.MustCompile(`^[+-]?[0-9]{1,3}(,[0-9]{3})+(\.[0-9]*)?$`)

// ParseMoney parses a decimal cell. Surrounding spaces and well-placed
// thousands separators are ignored, an empty cell is null.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NullMoney, nil
	}
	if strings.Contains(s, ",") {
		if !groupedNumber.MatchString(s) {
			return NullMoney, fmt.Errorf("misplaced thousands separator in %q", s)
		}
		s = strings.ReplaceAll(s, ",", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return NullMoney, err
	}
	return NewMoney(d), nil
}

// MoneyEqual is exact equality. Two nulls are equal, null vs value is not.
func MoneyEqual(a, b Money) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

// MoneySub returns a - b, null when either side is null.
func MoneySub(a, b Money) Money {
	if !a.Valid || !b.Valid {
		return NullMoney
	}
	return NewMoney(a.Decimal.Sub(b.Decimal))
}

// FormatMoney renders a cell value; null renders as "".
func FormatMoney(m Money) string {
	if !m.Valid {
		return ""
	}
	return m.Decimal.String()
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type LoanID string

// Key identifies one instalment across schedules.
type Key struct {
	LoanID LoanID `json:"loan_id"`
	Number int    `json:"instalment_number"`
}

func (k Key) String() string { return fmt.Sprintf("%s#%d", k.LoanID, k.Number) }

// Less orders keys by loan, then instalment number.
func (k Key) Less(other Key) bool {
	if k.LoanID != other.LoanID {
		return k.LoanID < other.LoanID
	}
	return k.Number < other.Number
}

// =============================================================================
// SOURCE KIND
// =============================================================================

type SourceKind string

const (
	SourcePartner SourceKind = "partner"
	SourceLMS     SourceKind = "lms"
	SourceSystem  SourceKind = "system"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusUnknown   Status = ""
	StatusDue       Status = "Due"
	StatusProjected Status = "Projected"
	StatusSatisfied Status = "Satisfied"
)

// ParseStatus matches case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "due":
		return StatusDue, nil
	case "projected":
		return StatusProjected, nil
	case "satisfied":
		return StatusSatisfied, nil
	case "":
		return StatusUnknown, fmt.Errorf("status is empty")
	}
	return StatusUnknown, fmt.Errorf("unknown status %q", s)
}

// IsPending reports whether the instalment has not been paid yet.
func (s Status) IsPending() bool { return s == StatusDue || s == StatusProjected }

// =============================================================================
// INSTALMENT RECORD
// =============================================================================

// InstalmentRecord is one normalized schedule row.
type InstalmentRecord struct {
	LoanID             LoanID `json:"loan_id"`
	InstalmentNumber   int    `json:"instalment_number"`
	InstalmentDate     Date   `json:"instalment_date"`
	Amount             Money  `json:"amount"`
	Principal          Money  `json:"principal"`
	Interest           Money  `json:"interest"`
	BalanceOutstanding Money  `json:"balance_outstanding"`
	Status             Status `json:"status,omitempty"`

	// Audit fields
	Source SourceKind `json:"source"`
	Row    int        `json:"row"` // 1-based data row in the source table
}

func (r InstalmentRecord) Key() Key {
	return Key{LoanID: r.LoanID, Number: r.InstalmentNumber}
}

// Field names the five compared columns. The string value is the label
// used in remarks.
type Field string

const (
	FieldInstalmentDate     Field = "InstalmentDate"
	FieldAmount             Field = "Amount"
	FieldPrincipal          Field = "Principal"
	FieldInterest           Field = "Interest"
	FieldBalanceOutstanding Field = "BalanceOutstanding"
)

// ComparedFields is the fixed comparison order, which is also the order
// of mismatch labels in remarks.
var ComparedFields = []Field{
	FieldInstalmentDate,
	FieldAmount,
	FieldPrincipal,
	FieldInterest,
	FieldBalanceOutstanding,
}

// MismatchLabel is the remark for a differing field, e.g. "Amount Mismatch".
func (f Field) MismatchLabel() string { return string(f) + " Mismatch" }

func (r InstalmentRecord) money(f Field) Money {
	switch f {
	case FieldAmount:
		return r.Amount
	case FieldPrincipal:
		return r.Principal
	case FieldInterest:
		return r.Interest
	case FieldBalanceOutstanding:
		return r.BalanceOutstanding
	}
	return NullMoney
}
