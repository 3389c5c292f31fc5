package recon_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/schedule-recon/recon"
)

// =============================================================================
// BALANCE CARRY
// =============================================================================

func TestAdjust_BalanceCarry_FromPartnerBalance(t *testing.T) {
	// GIVEN: LMS principal for #2 is 750, partner principal is 800
	// WHEN: reconciling
	// THEN: #1 takes the partner balance, #2 carries 9200 − 800

	res := reconcile(t,
		partnerSource(
			[]string{"L1", "1", "2024/04/05", "1000", "800", "200", "9200"},
			[]string{"L1", "2", "2024/05/05", "1000", "800", "200", "8400"},
		),
		lmsSource(
			[]string{"L1", "1", "2024-04-05", "1000", "800", "200", "9200", "Due"},
			[]string{"L1", "2", "2024-05-05", "1000", "750", "250", "8450", "Due"},
		),
	)

	first := pairFor(t, res, "L1", 1)
	second := pairFor(t, res, "L1", 2)

	assert.Equal(t, "9200", str(first.Adjusted.BalanceOutstanding))
	assert.False(t, first.PreviousBalance.Valid)
	assert.False(t, first.Changed)

	assert.Equal(t, "9200", str(second.PreviousBalance))
	assert.Equal(t, "8400", str(second.Adjusted.BalanceOutstanding))
	assert.Equal(t, "800", str(second.Adjusted.Principal))
	assert.True(t, second.Changed)
}

func TestAdjust_BalanceCarry_FromFrozenInstalment(t *testing.T) {
	// GIVEN: #1 is Satisfied in LMS with a balance the partner disagrees with
	// THEN: #1 keeps the LMS balance and later instalments carry from it

	res := reconcile(t,
		partnerSource(
			[]string{"L1", "1", "2024/04/05", "1000", "800", "200", "9200"},
			[]string{"L1", "2", "2024/05/05", "1000", "800", "200", "8400"},
			[]string{"L1", "3", "2024/06/05", "1000", "800", "200", "7600"},
		),
		lmsSource(
			[]string{"L1", "1", "2024-04-05", "1000", "700", "300", "9300", "Satisfied"},
			[]string{"L1", "2", "2024-05-05", "1000", "750", "250", "8450", "Due"},
			[]string{"L1", "3", "2024-06-05", "1000", "800", "200", "7600", "Projected"},
		),
	)

	assert.Equal(t, "9300", str(pairFor(t, res, "L1", 1).Adjusted.BalanceOutstanding))
	assert.Equal(t, "8500", str(pairFor(t, res, "L1", 2).Adjusted.BalanceOutstanding))
	assert.Equal(t, "7700", str(pairFor(t, res, "L1", 3).Adjusted.BalanceOutstanding))
	assert.Equal(t, 1, res.Summary.Frozen)
}

func TestAdjust_BalanceCarry_ResetsPerLoan(t *testing.T) {
	res := reconcile(t,
		partnerSource(
			[]string{"L1", "1", "2024/04/05", "1000", "800", "200", "9200"},
			[]string{"L2", "1", "2024/04/05", "500", "400", "100", "4600"},
		),
		lmsSource(),
	)

	assert.Equal(t, "9200", str(pairFor(t, res, "L1", 1).Adjusted.BalanceOutstanding))
	l2 := pairFor(t, res, "L2", 1)
	assert.False(t, l2.PreviousBalance.Valid)
	assert.Equal(t, "4600", str(l2.Adjusted.BalanceOutstanding))
}

func TestAdjust_BalanceCarry_ThroughOneSidedRows(t *testing.T) {
	// GIVEN: #2 exists only in LMS, #3 only in partner
	// THEN: the carry runs through both

	res := reconcile(t,
		partnerSource(
			[]string{"L1", "1", "2024/04/05", "1000", "800", "200", "9200"},
			[]string{"L1", "3", "2024/06/05", "1000", "800", "200", "7600"},
		),
		lmsSource(
			[]string{"L1", "1", "2024-04-05", "1000", "800", "200", "9200", "Due"},
			[]string{"L1", "2", "2024-05-05", "1000", "810", "190", "8390", "Due"},
		),
	)

	assert.Equal(t, "8390", str(pairFor(t, res, "L1", 2).Adjusted.BalanceOutstanding))
	assert.Equal(t, "7590", str(pairFor(t, res, "L1", 3).Adjusted.BalanceOutstanding))
}

func TestAdjust_NullPartnerValueFallsBackToLMS(t *testing.T) {
	res := reconcile(t,
		partnerSource([]string{"L1", "1", "2024/04/05", "", "800", "200", "9200"}),
		lmsSource([]string{"L1", "1", "2024-04-05", "1000", "800", "200", "9200", "Due"}),
	)

	p := res.Pairs[0]
	assert.Equal(t, "1000", str(p.Adjusted.Amount))
	assert.False(t, p.Changed)
}

// =============================================================================
// ADJUSTED SCHEDULE
// =============================================================================

func TestResult_AdjustedSchedule(t *testing.T) {
	partner := partnerSource(
		[]string{"L1", "1", "2024/04/05", "1000", "800", "200", "9200"},
		[]string{"L1", "2", "2024/05/05", "1000", "800", "200", "8400"},
		[]string{"L1", "3", "2024/06/05", "1000", "800", "200", "7600"},
	)
	lms := lmsSource(
		[]string{"L1", "1", "2024-04-05", "950", "750", "200", "9250", "Satisfied"},
		[]string{"L1", "2", "2024-05-05", "1000", "750", "250", "8500", "Due"},
	)

	res := reconcile(t, partner, lms)
	sched := res.AdjustedSchedule()

	require.Len(t, sched, 2)
	assert.Equal(t, "950", str(sched[0].Amount), "satisfied row copied unchanged")
	assert.Equal(t, "9250", str(sched[0].BalanceOutstanding))
	assert.Equal(t, recon.StatusSatisfied, sched[0].Status)

	assert.Equal(t, "800", str(sched[1].Principal))
	assert.Equal(t, "200", str(sched[1].Interest))
	assert.Equal(t, "8450", str(sched[1].BalanceOutstanding))
	assert.Equal(t, recon.StatusDue, sched[1].Status)

	assert.Equal(t, "750", str(pairFor(t, res, "L1", 2).LMS.Principal), "original LMS record untouched")
}

// =============================================================================
// TABLE VIEW
// =============================================================================

func TestResult_TableColumnOrder(t *testing.T) {
	res := reconcile(t,
		partnerSource([]string{"L1", "1", "2024/04/05", "1000", "800", "200", "9200"}),
		lmsSource([]string{"L1", "1", "2024-04-05", "950", "750", "200", "9200", "Due"}),
	)

	tbl := res.Table()

	assert.Equal(t, []string{
		"LAN", "InstalmentNumber",
		"InstalmentDate_partner", "Amount_partner", "Principal_partner", "Interest_partner", "BalanceOutstanding_partner",
		"InstalmentDate_lms", "Amount_lms", "Principal_lms", "Interest_lms", "BalanceOutstanding_lms",
		"Status_lms",
		"AdjustedAmount", "AdjustedPrincipal", "AdjustedInterest", "AdjustedBalanceOutstanding",
		"Principal Mismatch (Partner-LMS)", "Interest Mismatch (Partner-LMS)", "Amount Mismatch (Partner-LMS)",
		"Outstanding Balance Mismatch",
		"Remarks", "MissingInstallment",
	}, tbl.Columns)

	require.Len(t, tbl.Rows, 1)
	row := tbl.Rows[0]
	require.Len(t, row, len(tbl.Columns))

	cell := func(name string) string {
		for i, c := range tbl.Columns {
			if c == name {
				return row[i]
			}
		}
		t.Fatalf("no column %q", name)
		return ""
	}
	assert.Equal(t, "L1", cell("LAN"))
	assert.Equal(t, "1", cell("InstalmentNumber"))
	assert.Equal(t, "2024-04-05", cell("InstalmentDate_partner"))
	assert.Equal(t, "2024-04-05", cell("InstalmentDate_lms"))
	assert.Equal(t, "Due", cell("Status_lms"))
	assert.Equal(t, "800", cell("AdjustedPrincipal"))
	assert.Equal(t, "50", cell("Amount Mismatch (Partner-LMS)"))
	assert.Equal(t, "0", cell("Outstanding Balance Mismatch"))
	assert.Equal(t, "Amount Mismatch, Principal Mismatch", cell("Remarks"))
	assert.Equal(t, "No", cell("MissingInstallment"))
}

func TestResult_TableBlankCellsForMissingSide(t *testing.T) {
	res := reconcile(t,
		partnerSource([]string{"L1", "1", "2024/04/05", "1000", "800", "200", "9200"}),
		lmsSource(),
	)

	row := res.Table().Rows[0]
	for i := 7; i <= 12; i++ {
		assert.Empty(t, row[i], "LMS cell %d", i)
	}
	assert.Equal(t, "Yes", row[len(row)-1])
}
