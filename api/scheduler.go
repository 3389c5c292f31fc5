/*
scheduler.go - Inbox reconciliation scheduler

PURPOSE:
  Periodically scans an inbox directory for schedule batches dropped by
  upstream exports and reconciles each complete batch automatically.

BATCH LAYOUT:
  A batch is a set of files sharing a name prefix:
    <batch>.partner.json   required
    <batch>.lms.json       required
    <batch>.system.json    optional
  Files use the TableDTO JSON shape (name, columns, rows).

DESIGN:
  - Runs a background goroutine with configurable check interval
  - A batch is processed once both required files are present
  - Its files are first moved to processing/<batch>/, which claims it
  - Processed batches move on to processed/<batch>/ with run.json beside them
  - Rejected batches move on to failed/<batch>/ with error.txt
  - Claiming is what marks a batch done; a claimed batch is never re-read

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - Enabled: Whether scheduler is active (default: true)
  - Profile: Source profile id used for every batch (default profile when empty)

USAGE:
  scheduler := NewInboxScheduler(runner, "/var/recon/inbox", log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - runner.go: Run execution shared with the HTTP handlers
  - cmd/server/main.go: -inbox flag
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/warp/schedule-recon/recon"
)

const (
	partnerSuffix = ".partner.json"
	lmsSuffix     = ".lms.json"
	systemSuffix  = ".system.json"

	processingDir = "processing"
	processedDir  = "processed"
	failedDir     = "failed"
)

// InboxScheduler reconciles batches dropped into a directory.
type InboxScheduler struct {
	Runner        *Runner
	Dir           string
	Profile       string
	CheckInterval time.Duration
	Enabled       bool

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewInboxScheduler creates a new scheduler.
func NewInboxScheduler(runner *Runner, dir string, log zerolog.Logger) *InboxScheduler {
	return &InboxScheduler{
		Runner:        runner,
		Dir:           dir,
		CheckInterval: time.Minute,
		Enabled:       true,
		log:           log.With().Str("component", "inbox").Str("dir", dir).Logger(),
	}
}

// Start begins the scheduler.
func (s *InboxScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info().Msg("scheduler disabled, not starting")
		return
	}

	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.log.Info().Dur("interval", s.CheckInterval).Msg("scheduler started")
}

// Stop stops the scheduler and waits for an in-flight check.
func (s *InboxScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.log.Info().Msg("scheduler stopped")
	}
}

func (s *InboxScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.RunNow(context.Background())
		case <-s.stop:
			return
		}
	}
}

// InboxReport counts the outcome of one inbox check.
type InboxReport struct {
	Processed  int
	Failed     int
	Incomplete int
}

// RunNow checks the inbox once and processes every complete batch.
func (s *InboxScheduler) RunNow(ctx context.Context) InboxReport {
	var report InboxReport

	batches, incomplete, err := scanInbox(s.Dir)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to scan inbox")
		return report
	}
	report.Incomplete = len(incomplete)
	for _, name := range incomplete {
		s.log.Debug().Str("batch", name).Msg("batch incomplete, waiting")
	}

	for _, b := range batches {
		if err := s.process(ctx, b); err != nil {
			report.Failed++
			s.log.Warn().Err(err).Str("batch", b.name).Msg("batch rejected")
			continue
		}
		report.Processed++
	}

	if report.Processed > 0 || report.Failed > 0 {
		s.log.Info().
			Int("processed", report.Processed).
			Int("failed", report.Failed).
			Msg("inbox check completed")
	}
	return report
}

// inboxBatch is one complete batch found in the inbox.
type inboxBatch struct {
	name    string
	partner string
	lms     string
	system  string
}

// in returns the batch with its files relocated to dir.
func (b inboxBatch) in(dir string) inboxBatch {
	moved := inboxBatch{name: b.name}
	moved.partner = filepath.Join(dir, filepath.Base(b.partner))
	moved.lms = filepath.Join(dir, filepath.Base(b.lms))
	if b.system != "" {
		moved.system = filepath.Join(dir, filepath.Base(b.system))
	}
	return moved
}

func (b inboxBatch) files() []string {
	out := []string{b.partner, b.lms}
	if b.system != "" {
		out = append(out, b.system)
	}
	return out
}

// scanInbox groups inbox files into batches, sorted by name. Names with a
// partner or LMS file but not both are returned as incomplete.
func scanInbox(dir string) ([]inboxBatch, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read inbox: %w", err)
	}

	byName := make(map[string]*inboxBatch)
	get := func(name string) *inboxBatch {
		b, ok := byName[name]
		if !ok {
			b = &inboxBatch{name: name}
			byName[name] = b
		}
		return b
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		file := e.Name()
		path := filepath.Join(dir, file)
		switch {
		case strings.HasSuffix(file, partnerSuffix):
			get(strings.TrimSuffix(file, partnerSuffix)).partner = path
		case strings.HasSuffix(file, lmsSuffix):
			get(strings.TrimSuffix(file, lmsSuffix)).lms = path
		case strings.HasSuffix(file, systemSuffix):
			get(strings.TrimSuffix(file, systemSuffix)).system = path
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	var batches []inboxBatch
	var incomplete []string
	for _, name := range names {
		b := byName[name]
		if b.partner == "" || b.lms == "" {
			incomplete = append(incomplete, name)
			continue
		}
		batches = append(batches, *b)
	}
	return batches, incomplete, nil
}

// process claims a batch by moving its files to processing/<batch>/,
// reconciles it, then moves the directory to processed/ or failed/.
// Once claimed the batch is never picked up again, even when the final
// move fails.
func (s *InboxScheduler) process(ctx context.Context, b inboxBatch) error {
	staging := filepath.Join(s.Dir, processingDir, b.name)
	if err := moveFiles(staging, b.files()); err != nil {
		return fmt.Errorf("failed to claim batch: %w", err)
	}
	claimed := b.in(staging)

	run, runErr := s.reconcile(ctx, claimed)

	dest := filepath.Join(s.Dir, processedDir, b.name)
	if runErr != nil {
		dest = filepath.Join(s.Dir, failedDir, b.name)
	}
	if err := replaceDir(staging, dest); err != nil {
		return multierror.Append(runErr, err)
	}

	if runErr != nil {
		if err := os.WriteFile(filepath.Join(dest, "error.txt"), []byte(runErr.Error()+"\n"), 0o644); err != nil {
			return multierror.Append(runErr, err)
		}
		return runErr
	}

	data, err := json.MarshalIndent(NewRunDTO(*run, true), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dest, "run.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}

	s.log.Info().Str("batch", b.name).Str("run_id", run.ID).Msg("batch reconciled")
	return nil
}

// reconcile loads the batch tables and runs them through the shared runner.
func (s *InboxScheduler) reconcile(ctx context.Context, b inboxBatch) (*recon.Run, error) {
	in := Input{Profile: s.Profile}
	var err error
	if in.Partner, err = LoadTableFile(b.partner); err != nil {
		return nil, err
	}
	if in.LMS, err = LoadTableFile(b.lms); err != nil {
		return nil, err
	}
	if b.system != "" {
		sys, err := LoadTableFile(b.system)
		if err != nil {
			return nil, err
		}
		in.System = &sys
	}
	return s.Runner.Run(ctx, s.log.With().Str("batch", b.name).Logger(), in)
}

// moveFiles moves files into dest.
func moveFiles(dest string, files []string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	var errs *multierror.Error
	for _, f := range files {
		target := filepath.Join(dest, filepath.Base(f))
		if err := os.Rename(f, target); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = multierror.Append(errs, fmt.Errorf("failed to move %s: %w", filepath.Base(f), err))
		}
	}
	return errs.ErrorOrNil()
}

// replaceDir moves src to dest, replacing what a previous batch of the
// same name left there.
func replaceDir(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dest, err)
	}
	if err := os.Rename(src, dest); err != nil {
		return fmt.Errorf("failed to move batch: %w", err)
	}
	return nil
}
