// Package store provides RunStore implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/schedule-recon/recon"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.RWMutex
	runs map[string]recon.Run
}

func NewMemory() *Memory {
	return &Memory{runs: make(map[string]recon.Run)}
}

// SaveRun adds a run. Append-only.
func (m *Memory) SaveRun(_ context.Context, run recon.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[run.ID]; exists {
		return fmt.Errorf("%w: %s", recon.ErrRunExists, run.ID)
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (*recon.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, recon.ErrRunNotFound
	}
	return &run, nil
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]recon.RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]recon.RunSummary, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, run.Summarize())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListFindings(ctx context.Context, runID string, kind recon.FindingKind) ([]recon.FindingRecord, error) {
	run, err := m.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := []recon.FindingRecord{}
	for _, f := range run.FindingRecords() {
		if kind == "" || f.Kind == kind {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *Memory) FindingsByLoan(_ context.Context, loan recon.LoanID) ([]recon.FindingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]recon.Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	out := []recon.FindingRecord{}
	for _, run := range runs {
		for _, f := range run.FindingRecords() {
			if f.LoanID == loan {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

var _ recon.RunStore = (*Memory)(nil)
