package recon

import "strings"

// Remarks for one-sided rows and clean matches.
const (
	RemarkMatch           = "Match"
	RemarkLMSMissing      = "LMS Missing Instalment"
	RemarkPartnerMissing  = "Partner Missing Instalment"
	RemarkSystemMissing   = "System Missing Instalment"
	MissingInstallmentYes = "Yes"
	MissingInstallmentNo  = "No"
	remarkSeparator       = ", "
)

// compareRecords returns the fields whose values differ under exact
// equality, in ComparedFields order. No tolerance is applied.
func compareRecords(a, b InstalmentRecord) []Field {
	var diffs []Field
	for _, f := range ComparedFields {
		if f == FieldInstalmentDate {
			if !a.InstalmentDate.Equal(b.InstalmentDate) {
				diffs = append(diffs, f)
			}
			continue
		}
		if !MoneyEqual(a.money(f), b.money(f)) {
			diffs = append(diffs, f)
		}
	}
	return diffs
}

func mismatchRemarks(fields []Field) string {
	if len(fields) == 0 {
		return RemarkMatch
	}
	labels := make([]string, len(fields))
	for i, f := range fields {
		labels[i] = f.MismatchLabel()
	}
	return strings.Join(labels, remarkSeparator)
}

// classify fills FieldDiffs, Remarks and the audit diffs of a pair.
func classify(p *JoinedPair) {
	switch p.State {
	case StatePartnerOnly:
		p.Remarks = RemarkLMSMissing
	case StateLMSOnly:
		p.Remarks = RemarkPartnerMissing
	case StateBoth:
		p.FieldDiffs = compareRecords(*p.Partner, *p.LMS)
		p.Remarks = mismatchRemarks(p.FieldDiffs)
	}
	p.Diffs = computeDiffs(p.Partner, p.LMS)
}

// computeDiffs is Partner − LMS for the four monetary fields. A missing
// side or a null cell yields a null diff.
func computeDiffs(partner, lms *InstalmentRecord) Values {
	if partner == nil || lms == nil {
		return Values{}
	}
	return Values{
		Amount:             MoneySub(partner.Amount, lms.Amount),
		Principal:          MoneySub(partner.Principal, lms.Principal),
		Interest:           MoneySub(partner.Interest, lms.Interest),
		BalanceOutstanding: MoneySub(partner.BalanceOutstanding, lms.BalanceOutstanding),
	}
}

// crossCheckSystem compares the system schedule against LMS using the
// same taxonomy as the partner comparison.
func crossCheckSystem(p *JoinedPair) {
	switch {
	case p.System == nil:
		p.SystemRemarks = RemarkSystemMissing
	case p.LMS == nil:
		p.SystemRemarks = RemarkLMSMissing
	default:
		p.SystemRemarks = mismatchRemarks(compareRecords(*p.System, *p.LMS))
	}
}
