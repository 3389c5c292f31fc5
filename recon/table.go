/*
table.go - Tabular boundary between the engine and its input collaborators

PURPOSE:
  Input collaborators (spreadsheet readers, API payloads, fixtures) hand
  the engine plain string tables. This file checks the table structure,
  maps headers onto canonical columns, and decodes every data row into an
  InstalmentRecord using the source's declared date rule.

FAILURE MODES:
  - No header / repeated header           -> *TableError (fatal)
  - Required column absent                -> *SchemaError (fatal, lists all)
  - Cell that cannot be parsed            -> *MalformedRecord (row skipped)

CANONICAL COLUMNS:
  LAN, InstalmentNumber, InstalmentDate, Amount, Principal, Interest,
  BalanceOutstanding, Status (required for LMS only).
  A SourceConfig may map a canonical column to a different header, e.g.
  {"LAN": "LoanId"}.

SEE ALSO:
  - factory/profile.go: Builds SourceConfig values from profile files
  - errors.go: Error types produced here
*/
package recon

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TABLE
// =============================================================================

// Table is a header row plus string data rows.
type Table struct {
	Name    string     `json:"name"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Canonical column names.
const (
	ColLAN                = "LAN"
	ColInstalmentNumber   = "InstalmentNumber"
	ColInstalmentDate     = "InstalmentDate"
	ColAmount             = "Amount"
	ColPrincipal          = "Principal"
	ColInterest           = "Interest"
	ColBalanceOutstanding = "BalanceOutstanding"
	ColStatus             = "Status"
)

var baseColumns = []string{
	ColLAN,
	ColInstalmentNumber,
	ColInstalmentDate,
	ColAmount,
	ColPrincipal,
	ColInterest,
	ColBalanceOutstanding,
}

// RequiredColumns returns the canonical columns a source of this kind must carry.
func RequiredColumns(kind SourceKind) []string {
	cols := append([]string(nil), baseColumns...)
	if kind == SourceLMS {
		cols = append(cols, ColStatus)
	}
	return cols
}

// =============================================================================
// SOURCE CONFIG
// =============================================================================

// SourceConfig declares how one source writes its schedule.
type SourceConfig struct {
	Kind    SourceKind
	Name    string
	Dates   DateRule
	Columns map[string]string // canonical column -> header used by this source
}

// Source pairs a table with the configuration to read it.
type Source struct {
	Config SourceConfig
	Table  Table
}

func DefaultPartnerConfig() SourceConfig {
	return SourceConfig{Kind: SourcePartner, Name: "partner", Dates: NewLayoutRule(PartnerDateLayout)}
}

func DefaultLMSConfig() SourceConfig {
	return SourceConfig{Kind: SourceLMS, Name: "lms", Dates: NewLayoutRule(LMSDateLayout)}
}

func DefaultSystemConfig() SourceConfig {
	return SourceConfig{Kind: SourceSystem, Name: "system", Dates: NewLayoutRule(SystemDateLayout)}
}

func (c SourceConfig) header(canonical string) string {
	if h, ok := c.Columns[canonical]; ok && h != "" {
		return h
	}
	return canonical
}

func normalizeHeader(h string) string { return strings.ToLower(strings.TrimSpace(h)) }

// =============================================================================
// DECODING
// =============================================================================

// decoded is the outcome of reading one source table.
type decoded struct {
	records   []InstalmentRecord
	malformed []*MalformedRecord
}

// decode validates structure and schema, then parses each row.
// Row errors are collected; only structural problems return an error.
func decode(src Source) (decoded, error) {
	cfg, tbl := src.Config, src.Table
	if cfg.Dates == nil {
		return decoded{}, &TableError{Source: cfg.Kind, Table: tbl.Name, Reason: "no date rule declared"}
	}
	if len(tbl.Columns) == 0 {
		return decoded{}, &TableError{Source: cfg.Kind, Table: tbl.Name, Reason: "no header row"}
	}

	index := make(map[string]int, len(tbl.Columns))
	for i, h := range tbl.Columns {
		n := normalizeHeader(h)
		if n == "" {
			continue
		}
		if _, dup := index[n]; dup {
			return decoded{}, &TableError{Source: cfg.Kind, Table: tbl.Name, Reason: "repeated column " + strconv.Quote(h)}
		}
		index[n] = i
	}

	pos := make(map[string]int)
	var missing []string
	for _, col := range RequiredColumns(cfg.Kind) {
		h := cfg.header(col)
		i, ok := index[normalizeHeader(h)]
		if !ok {
			missing = append(missing, h)
			continue
		}
		pos[col] = i
	}
	if len(missing) > 0 {
		return decoded{}, &SchemaError{Source: cfg.Kind, Table: tbl.Name, Missing: missing}
	}
	// System schedules may carry a status; it is informational only.
	if cfg.Kind == SourceSystem {
		if i, ok := index[normalizeHeader(cfg.header(ColStatus))]; ok {
			pos[ColStatus] = i
		}
	}

	out := decoded{records: make([]InstalmentRecord, 0, len(tbl.Rows))}
	for i, row := range tbl.Rows {
		rec, bad := decodeRow(cfg, pos, len(tbl.Columns), row, i+1)
		if bad != nil {
			out.malformed = append(out.malformed, bad)
			continue
		}
		out.records = append(out.records, rec)
	}
	return out, nil
}

func decodeRow(cfg SourceConfig, pos map[string]int, width int, row []string, rowNum int) (InstalmentRecord, *MalformedRecord) {
	malformed := func(col, value, reason string) *MalformedRecord {
		return &MalformedRecord{Source: cfg.Kind, Row: rowNum, Column: col, Value: value, Reason: reason}
	}
	if len(row) > width {
		return InstalmentRecord{}, malformed("", "", "row has "+strconv.Itoa(len(row))+" cells, header has "+strconv.Itoa(width))
	}
	cell := func(col string) string {
		i, ok := pos[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	rec := InstalmentRecord{Source: cfg.Kind, Row: rowNum}

	lan := strings.TrimSpace(cell(ColLAN))
	if lan == "" {
		return rec, malformed(ColLAN, cell(ColLAN), "loan id is empty")
	}
	rec.LoanID = LoanID(lan)

	withLoan := func(m *MalformedRecord) *MalformedRecord {
		m.LoanID = rec.LoanID
		return m
	}

	n, err := parseInstalmentNumber(cell(ColInstalmentNumber))
	if err != nil {
		return rec, withLoan(malformed(ColInstalmentNumber, cell(ColInstalmentNumber), err.Error()))
	}
	rec.InstalmentNumber = n

	date, err := cfg.Dates.ParseDate(cell(ColInstalmentDate))
	if err != nil {
		return rec, withLoan(malformed(ColInstalmentDate, cell(ColInstalmentDate), err.Error()))
	}
	rec.InstalmentDate = date

	for _, m := range []struct {
		col string
		dst *Money
	}{
		{ColAmount, &rec.Amount},
		{ColPrincipal, &rec.Principal},
		{ColInterest, &rec.Interest},
		{ColBalanceOutstanding, &rec.BalanceOutstanding},
	} {
		v, err := ParseMoney(cell(m.col))
		if err != nil {
			return rec, withLoan(malformed(m.col, cell(m.col), "not a decimal number"))
		}
		*m.dst = v
	}

	if _, ok := pos[ColStatus]; ok && cfg.Kind != SourcePartner {
		raw := cell(ColStatus)
		if cfg.Kind == SourceSystem && strings.TrimSpace(raw) == "" {
			return rec, nil
		}
		st, err := ParseStatus(raw)
		if err != nil {
			return rec, withLoan(malformed(ColStatus, raw, err.Error()))
		}
		rec.Status = st
	}
	return rec, nil
}

// parseInstalmentNumber accepts integral values, including "3.0" as
// produced by spreadsheet exports.
func parseInstalmentNumber(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errString("instalment number is empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errString("instalment number is not numeric")
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, errString("instalment number is not an integer")
	}
	if d.Sign() <= 0 {
		return 0, errString("instalment number must be positive")
	}
	if d.GreaterThan(maxInstalmentNumber) {
		return 0, errString("instalment number out of range")
	}
	return int(d.IntPart()), nil
}

var maxInstalmentNumber = decimal.NewFromInt(math.MaxInt32)

type errString string

func (e errString) Error() string { return string(e) }
