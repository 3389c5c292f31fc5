package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/schedule-recon/recon"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func reconciledRun(t *testing.T, id string, at time.Time) recon.Run {
	t.Helper()
	partner := recon.Source{
		Config: recon.DefaultPartnerConfig(),
		Table: recon.Table{
			Name:    "partner.xlsx",
			Columns: []string{"LAN", "InstalmentNumber", "InstalmentDate", "Amount", "Principal", "Interest", "BalanceOutstanding"},
			Rows: [][]string{
				{"L1", "1", "2024/04/05", "1000", "800", "200", "9200"},
				{"L1", "2", "2024/05/05", "1000", "810", "190", "8390"},
				{"L1", "3", "2024/06/05", "1000", "820", "180", "7570"},
			},
		},
	}
	lms := recon.Source{
		Config: recon.DefaultLMSConfig(),
		Table: recon.Table{
			Name:    "lms.xlsx",
			Columns: []string{"LAN", "InstalmentNumber", "InstalmentDate", "Amount", "Principal", "Interest", "BalanceOutstanding", "Status"},
			Rows: [][]string{
				{"L1", "1", "2024-04-05", "950", "750", "200", "9250", "Satisfied"},
				{"L1", "2", "2024-05-05", "1000", "810", "190", "8390", "Due"},
				{"L1", "9", "bad-date", "1", "1", "0", "0", "Due"},
			},
		},
	}
	res, err := recon.NewEngine().Reconcile(partner, lms)
	require.NoError(t, err)
	return recon.Run{
		ID:          id,
		Profile:     "default",
		PartnerName: partner.Table.Name,
		LMSName:     lms.Table.Name,
		CreatedAt:   at,
		Result:      res,
	}
}

func TestStore_SaveAndGetRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	at := time.Date(2024, 6, 1, 9, 30, 0, 123, time.UTC)
	run := reconciledRun(t, "run-1", at)

	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "partner.xlsx", got.PartnerName)
	assert.Empty(t, got.SystemName)
	assert.True(t, at.Equal(got.CreatedAt))
	require.NotNil(t, got.Result)
	assert.Equal(t, run.Result.Summary, got.Result.Summary)
	assert.Equal(t, run.Result.Table(), got.Result.Table(), "table view survives the round trip")
	assert.Len(t, got.Result.Malformed, 1)
}

func TestStore_SaveRunTwice(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	run := reconciledRun(t, "run-1", time.Now())

	require.NoError(t, s.SaveRun(ctx, run))
	assert.ErrorIs(t, s.SaveRun(ctx, run), recon.ErrRunExists)
}

func TestStore_GetUnknownRun(t *testing.T) {
	_, err := newTestStore(t).GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, recon.ErrRunNotFound)
}

func TestStore_ListRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveRun(ctx, reconciledRun(t, id, base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})
	assert.Equal(t, 3, runs[0].Summary.Rows)

	limited, err := s.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_NewestFirstWithinOneSecond(t *testing.T) {
	// GIVEN: two runs a few milliseconds apart in the same second
	// WHEN: listing runs and a loan's findings
	// THEN: the later run comes first in both

	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRun(ctx, reconciledRun(t, "older", base.Add(100*time.Millisecond))))
	require.NoError(t, s.SaveRun(ctx, reconciledRun(t, "newer", base.Add(123*time.Millisecond))))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "newer", runs[0].ID)
	assert.Equal(t, "older", runs[1].ID)
	assert.True(t, base.Add(123*time.Millisecond).Equal(runs[0].CreatedAt))

	findings, err := s.FindingsByLoan(ctx, "L1")
	require.NoError(t, err)
	require.NotEmpty(t, findings)
	assert.Equal(t, "newer", findings[0].RunID)
	assert.Equal(t, "older", findings[len(findings)-1].RunID)
}

func TestStore_CorruptTimestamp(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveRun(ctx, reconciledRun(t, "run-1", time.Now())))
	_, err := s.db.ExecContext(ctx, `UPDATE reconciliation_runs SET created_at = 'yesterday' WHERE id = 'run-1'`)
	require.NoError(t, err)

	_, err = s.GetRun(ctx, "run-1")
	assert.ErrorContains(t, err, "invalid created_at")

	_, err = s.ListRuns(ctx, 0)
	assert.ErrorContains(t, err, "invalid created_at")
}

func TestStore_Findings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	run := reconciledRun(t, "run-1", time.Now())
	require.NoError(t, s.SaveRun(ctx, run))

	all, err := s.ListFindings(ctx, "run-1", "")
	require.NoError(t, err)
	assert.Equal(t, run.FindingRecords(), all)

	malformed, err := s.ListFindings(ctx, "run-1", recon.KindMalformedRecord)
	require.NoError(t, err)
	require.Len(t, malformed, 1)
	assert.Equal(t, recon.LoanID("L1"), malformed[0].LoanID)

	byLoan, err := s.FindingsByLoan(ctx, "L1")
	require.NoError(t, err)
	assert.Len(t, byLoan, len(all))

	_, err = s.ListFindings(ctx, "nope", "")
	assert.ErrorIs(t, err, recon.ErrRunNotFound)
}
