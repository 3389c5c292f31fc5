/*
errors.go - Error and finding types for the reconciliation engine

PURPOSE:
  All error types in one place. Two families live here:

  1. Fatal errors abort a run with no result:
     - SchemaError: a required column is absent
     - TableError: the table structure itself is unreadable

  2. Findings are collected and returned next to a successful result:
     - MalformedRecord: a row's date/number/status cannot be parsed
     - DuplicateKeyWarning: a join key appears twice in one source
     - MissingDemandCount: partner expects more pending instalments than LMS
     - UnmatchedSystemRecord: a system key exists in neither partner nor LMS

USAGE:
  result, err := engine.Reconcile(partner, lms)
  var schemaErr *recon.SchemaError
  if errors.As(err, &schemaErr) {
      // schemaErr.Missing lists the absent columns
  }
  for _, f := range result.Findings() {
      log.Warn().Str("kind", string(f.Kind())).Msg(f.Error())
  }

SEE ALSO:
  - table.go: Produces SchemaError, TableError, MalformedRecord
  - join.go: Produces DuplicateKeyWarning
  - demand.go: Produces MissingDemandCount
*/
package recon

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSchema is returned when a table lacks a required column.
	ErrSchema = errors.New("schema error")

	// ErrUnreadableTable is returned when a table has no usable structure.
	ErrUnreadableTable = errors.New("unreadable table")

	// ErrMalformedRecord marks a row that could not be normalized.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrDuplicateKey marks a repeated (LoanID, InstalmentNumber) in one source.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrMissingDemand marks a loan where LMS has fewer pending instalments.
	ErrMissingDemand = errors.New("missing demand count")

	// ErrUnmatchedSystem marks a system row with no partner or LMS counterpart.
	ErrUnmatchedSystem = errors.New("unmatched system record")

	// ErrRunNotFound is returned by run stores for unknown run ids.
	ErrRunNotFound = errors.New("reconciliation run not found")

	// ErrRunExists is returned when saving a run id twice.
	ErrRunExists = errors.New("reconciliation run already exists")

	// ErrInvalidProfile is returned when a source profile fails validation.
	ErrInvalidProfile = errors.New("invalid source profile")
)

// =============================================================================
// FATAL ERRORS
// =============================================================================

// SchemaError names every required column missing from a source table.
type SchemaError struct {
	Source  SourceKind
	Table   string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s table %q is missing required column(s): %s",
		e.Source, e.Table, strings.Join(e.Missing, ", "))
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// TableError reports a table whose structure cannot be read at all.
type TableError struct {
	Source SourceKind
	Table  string
	Reason string
}

func (e *TableError) Error() string {
	return fmt.Sprintf("%s table %q is unreadable: %s", e.Source, e.Table, e.Reason)
}

func (e *TableError) Unwrap() error { return ErrUnreadableTable }

// =============================================================================
// FINDINGS - Row-level issues, returned with the result
// =============================================================================

type FindingKind string

const (
	KindMalformedRecord       FindingKind = "MalformedRecord"
	KindDuplicateKey          FindingKind = "DuplicateKeyWarning"
	KindMissingDemandCount    FindingKind = "MissingDemandCount"
	KindUnmatchedSystemRecord FindingKind = "UnmatchedSystemRecord"
)

// Finding is implemented by every row-level issue.
type Finding interface {
	error
	Kind() FindingKind
	Loan() LoanID
}

// MalformedRecord is a row excluded from the join because one of its cells
// could not be parsed under its source's rules.
type MalformedRecord struct {
	Source SourceKind `json:"source"`
	Row    int        `json:"row"`
	LoanID LoanID     `json:"loan_id,omitempty"`
	Column string     `json:"column"`
	Value  string     `json:"value"`
	Reason string     `json:"reason"`
}

func (e *MalformedRecord) Error() string {
	return fmt.Sprintf("%s row %d: column %s value %q: %s", e.Source, e.Row, e.Column, e.Value, e.Reason)
}

func (e *MalformedRecord) Unwrap() error     { return ErrMalformedRecord }
func (e *MalformedRecord) Kind() FindingKind { return KindMalformedRecord }
func (e *MalformedRecord) Loan() LoanID      { return e.LoanID }

// DuplicateKeyWarning records an ignored occurrence of a key; the row at
// FirstRow is the one used in the join.
type DuplicateKeyWarning struct {
	Source   SourceKind `json:"source"`
	Key      Key        `json:"key"`
	Row      int        `json:"row"`
	FirstRow int        `json:"first_row"`
}

func (e *DuplicateKeyWarning) Error() string {
	return fmt.Sprintf("%s row %d: duplicate key %s, keeping row %d", e.Source, e.Row, e.Key, e.FirstRow)
}

func (e *DuplicateKeyWarning) Unwrap() error     { return ErrDuplicateKey }
func (e *DuplicateKeyWarning) Kind() FindingKind { return KindDuplicateKey }
func (e *DuplicateKeyWarning) Loan() LoanID      { return e.Key.LoanID }

// MissingDemandCount reports a loan for which the partner schedule implies
// more pending instalments than LMS records. Nothing is fabricated.
type MissingDemandCount struct {
	LoanID         LoanID `json:"loan_id"`
	PartnerPending int    `json:"partner_pending"`
	LMSPending     int    `json:"lms_pending"`
	Shortfall      int    `json:"shortfall"`
}

func (e *MissingDemandCount) Error() string {
	return fmt.Sprintf("loan %s: partner has %d pending instalments, LMS has %d (shortfall %d)",
		e.LoanID, e.PartnerPending, e.LMSPending, e.Shortfall)
}

func (e *MissingDemandCount) Unwrap() error     { return ErrMissingDemand }
func (e *MissingDemandCount) Kind() FindingKind { return KindMissingDemandCount }
func (e *MissingDemandCount) Loan() LoanID      { return e.LoanID }

// UnmatchedSystemRecord is a system row whose key is in neither partner nor LMS.
type UnmatchedSystemRecord struct {
	Key Key `json:"key"`
	Row int `json:"row"`
}

func (e *UnmatchedSystemRecord) Error() string {
	return fmt.Sprintf("system row %d: key %s not present in partner or LMS", e.Row, e.Key)
}

func (e *UnmatchedSystemRecord) Unwrap() error     { return ErrUnmatchedSystem }
func (e *UnmatchedSystemRecord) Kind() FindingKind { return KindUnmatchedSystemRecord }
func (e *UnmatchedSystemRecord) Loan() LoanID      { return e.Key.LoanID }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrSchema) ||
		errors.Is(err, ErrUnreadableTable) ||
		errors.Is(err, ErrInvalidProfile)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
