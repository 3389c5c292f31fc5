package api

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/schedule-recon/factory"
	"github.com/warp/schedule-recon/recon"
)

// Input is one reconciliation request after decoding.
type Input struct {
	Profile string
	Partner recon.Table
	LMS     recon.Table
	System  *recon.Table
}

// Runner resolves the profile, runs the engine and records the run.
// Shared by the HTTP handlers and the CLI.
type Runner struct {
	Store    recon.RunStore
	Profiles *factory.Registry

	NewID func() string
	Now   func() time.Time
}

func NewRunner(store recon.RunStore, profiles *factory.Registry) *Runner {
	if profiles == nil {
		profiles = factory.NewRegistry()
	}
	return &Runner{
		Store:    store,
		Profiles: profiles,
		NewID:    uuid.NewString,
		Now:      time.Now,
	}
}

// Run reconciles the input and stores the run. Nothing is stored when the
// engine rejects the input.
func (rn *Runner) Run(ctx context.Context, log zerolog.Logger, in Input) (*recon.Run, error) {
	profile, err := rn.Profiles.Get(in.Profile)
	if err != nil {
		return nil, err
	}

	engine := recon.NewEngine(recon.WithLogger(log.With().Str("profile", profile.ID).Logger()))
	var res *recon.Result
	if in.System != nil {
		res, err = engine.ReconcileWithSystem(profile.PartnerSource(in.Partner), profile.LMSSource(in.LMS), profile.SystemSource(*in.System))
	} else {
		res, err = engine.Reconcile(profile.PartnerSource(in.Partner), profile.LMSSource(in.LMS))
	}
	if err != nil {
		return nil, err
	}

	run := recon.Run{
		ID:          rn.NewID(),
		Profile:     profile.ID,
		PartnerName: in.Partner.Name,
		LMSName:     in.LMS.Name,
		CreatedAt:   rn.Now().UTC(),
		Result:      res,
	}
	if in.System != nil {
		run.SystemName = in.System.Name
	}
	if err := rn.Store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to store run: %w", err)
	}

	log.Info().
		Str("run_id", run.ID).
		Str("profile", run.Profile).
		Int("rows", res.Summary.Rows).
		Msg("reconciliation stored")
	return &run, nil
}

// LoadTableFile reads a table file in the TableDTO JSON shape. A table
// without a name is named after its file.
func LoadTableFile(path string) (recon.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return recon.Table{}, fmt.Errorf("failed to read table: %w", err)
	}
	var dto TableDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return recon.Table{}, fmt.Errorf("%w: %s: %w", recon.ErrUnreadableTable, filepath.Base(path), err)
	}
	if dto.Name == "" {
		dto.Name = filepath.Base(path)
	}
	return dto.Table(), nil
}
