/*
engine.go - Reconcile pipeline

PURPOSE:
  Runs the full reconciliation for one partner/LMS pair (optionally with
  a system schedule) and returns a Result. Each call is a pure function of
  its inputs: no state is kept between runs and caller data is never
  modified, so one Engine can serve concurrent callers.

PIPELINE:
  1. Decode     tables -> records (SchemaError/TableError abort,
                bad rows become MalformedRecord findings)
  2. Index      first-seen key wins, repeats -> DuplicateKeyWarning
  3. Join       full outer join on (LoanID, InstalmentNumber)
  4. Classify   remarks + Partner−LMS diffs
  5. Adjust     pass 1 per row, pass 2 balance fold per loan
  6. Demand     per-loan pending count comparison
  7. System     optional cross-check against LMS

SEE ALSO:
  - table.go, join.go, classify.go, adjust.go, demand.go
*/
package recon

import (
	"time"

	"github.com/rs/zerolog"
)

// Engine runs reconciliations. The zero value is not usable; use NewEngine.
type Engine struct {
	log zerolog.Logger
	now func() time.Time
}

type Option func(*Engine)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock overrides the clock used for run timing in logs.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{log: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile aligns the partner and LMS schedules.
func (e *Engine) Reconcile(partner, lms Source) (*Result, error) {
	return e.run(partner, lms, nil)
}

// ReconcileWithSystem also cross-checks a system schedule against LMS.
func (e *Engine) ReconcileWithSystem(partner, lms, system Source) (*Result, error) {
	return e.run(partner, lms, &system)
}

func (e *Engine) run(partner, lms Source, system *Source) (*Result, error) {
	started := e.now()
	partner.Config.Kind = SourcePartner
	lms.Config.Kind = SourceLMS

	pDec, err := decode(partner)
	if err != nil {
		return nil, err
	}
	lDec, err := decode(lms)
	if err != nil {
		return nil, err
	}
	var sDec decoded
	if system != nil {
		system.Config.Kind = SourceSystem
		if sDec, err = decode(*system); err != nil {
			return nil, err
		}
	}
	e.log.Debug().
		Int("partner_records", len(pDec.records)).
		Int("lms_records", len(lDec.records)).
		Int("system_records", len(sDec.records)).
		Msg("decoded schedules")

	res := &Result{HasSystem: system != nil}
	res.Malformed = append(res.Malformed, pDec.malformed...)
	res.Malformed = append(res.Malformed, lDec.malformed...)
	res.Malformed = append(res.Malformed, sDec.malformed...)

	pIdx, pDups := indexRecords(SourcePartner, pDec.records)
	lIdx, lDups := indexRecords(SourceLMS, lDec.records)
	res.Duplicates = append(res.Duplicates, pDups...)
	res.Duplicates = append(res.Duplicates, lDups...)

	res.Pairs = outerJoin(pIdx, lIdx)
	for i := range res.Pairs {
		classify(&res.Pairs[i])
		adjustRow(&res.Pairs[i])
	}
	foldBalances(res.Pairs)

	res.MissingDemands = computeDemandShortfalls(pIdx, lIdx)

	if system != nil {
		sIdx, sDups := indexRecords(SourceSystem, sDec.records)
		res.Duplicates = append(res.Duplicates, sDups...)
		res.UnmatchedSystem = attachSystem(res.Pairs, sIdx)
	}

	res.summarize()
	e.logFindings(res)
	e.log.Info().
		Int("rows", res.Summary.Rows).
		Int("matched", res.Summary.Matched).
		Int("mismatched", res.Summary.Mismatched).
		Int("partner_only", res.Summary.PartnerOnly).
		Int("lms_only", res.Summary.LMSOnly).
		Int("frozen", res.Summary.Frozen).
		Int("findings", len(res.Findings())).
		Dur("took", e.now().Sub(started)).
		Msg("reconciliation finished")
	return res, nil
}

// attachSystem copies system records onto pairs and returns the system
// keys that matched no pair.
func attachSystem(pairs []JoinedPair, sys keyedIndex) []*UnmatchedSystemRecord {
	seen := make(map[Key]bool, len(pairs))
	for i := range pairs {
		p := &pairs[i]
		seen[p.Key] = true
		p.System = sys.get(p.Key)
		crossCheckSystem(p)
	}

	var out []*UnmatchedSystemRecord
	for k, rec := range sys.byKey {
		if !seen[k] {
			out = append(out, &UnmatchedSystemRecord{Key: k, Row: rec.Row})
		}
	}
	sortUnmatched(out)
	return out
}

func (e *Engine) logFindings(res *Result) {
	for _, f := range res.Findings() {
		e.log.Warn().
			Str("kind", string(f.Kind())).
			Str("loan_id", string(f.Loan())).
			Msg(f.Error())
	}
}
