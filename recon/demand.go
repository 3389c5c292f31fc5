package recon

import "sort"

// computeDemandShortfalls compares, per loan, the pending instalments the
// partner declares with the pending instalments LMS records.
//
// The partner schedule carries no status, so a partner instalment counts
// as pending unless LMS has the same key as Satisfied. LMS pending means
// Due or Projected. Only shortfalls (partner > LMS) are reported; no
// placeholder rows are ever created.
func computeDemandShortfalls(partner, lms keyedIndex) []*MissingDemandCount {
	partnerPending := make(map[LoanID]int)
	for k := range partner.byKey {
		if rec, ok := lms.byKey[k]; ok && rec.Status == StatusSatisfied {
			continue
		}
		partnerPending[k.LoanID]++
	}

	lmsPending := make(map[LoanID]int)
	for k, rec := range lms.byKey {
		if rec.Status.IsPending() {
			lmsPending[k.LoanID]++
		}
	}

	var out []*MissingDemandCount
	for loan, want := range partnerPending {
		have := lmsPending[loan]
		if want > have {
			out = append(out, &MissingDemandCount{
				LoanID:         loan,
				PartnerPending: want,
				LMSPending:     have,
				Shortfall:      want - have,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoanID < out[j].LoanID })
	return out
}
