/*
adjust.go - Adjustment policy for instalments that are not yet paid

PURPOSE:
  Derives the authoritative post-reconciliation values for each joined
  instalment. Runs as two explicit passes so no row is ever modified
  while a later row is being read:

  PASS 1 (per row, no ordering):
    Satisfied in LMS -> frozen, adjusted = LMS values verbatim
    otherwise        -> Amount/Principal/Interest = partner value when
                        present and non-null, else LMS value

  PASS 2 (per loan, ordered by InstalmentNumber):
    Fold a running balance carry forward:
      frozen row       -> balance = LMS balance, carry = that balance
      previous carry   -> balance = carry − adjusted Principal
      no carry         -> balance = partner balance (LMS when partner absent)

INVARIANT:
  A Satisfied LMS instalment is never rewritten, whatever the partner says.

EXAMPLE:
  Loan L1, partner balances 9200 / 8400, LMS principal for #2 is 750,
  partner principal 800:
    #1 (no carry)     adjusted balance 9200
    #2 (carry 9200)   adjusted balance 9200 − 800 = 8400

SEE ALSO:
  - classify.go: Remarks and audit diffs (independent of adjustment)
  - engine.go: Pass ordering
*/
package recon

// Values groups the four monetary fields of an instalment.
type Values struct {
	Amount             Money `json:"amount"`
	Principal          Money `json:"principal"`
	Interest           Money `json:"interest"`
	BalanceOutstanding Money `json:"balance_outstanding"`
}

func valuesOf(r InstalmentRecord) Values {
	return Values{
		Amount:             r.Amount,
		Principal:          r.Principal,
		Interest:           r.Interest,
		BalanceOutstanding: r.BalanceOutstanding,
	}
}

func (v Values) equal(o Values) bool {
	return MoneyEqual(v.Amount, o.Amount) &&
		MoneyEqual(v.Principal, o.Principal) &&
		MoneyEqual(v.Interest, o.Interest) &&
		MoneyEqual(v.BalanceOutstanding, o.BalanceOutstanding)
}

// preferPartner picks the partner value when present and non-null.
func preferPartner(partner *InstalmentRecord, lms *InstalmentRecord, f Field) Money {
	if partner != nil {
		if v := partner.money(f); v.Valid {
			return v
		}
	}
	if lms != nil {
		return lms.money(f)
	}
	return NullMoney
}

// adjustRow is pass 1.
func adjustRow(p *JoinedPair) {
	if p.LMS != nil && p.LMS.Status == StatusSatisfied {
		p.Frozen = true
		p.Adjusted = valuesOf(*p.LMS)
		return
	}
	p.Adjusted = Values{
		Amount:    preferPartner(p.Partner, p.LMS, FieldAmount),
		Principal: preferPartner(p.Partner, p.LMS, FieldPrincipal),
		Interest:  preferPartner(p.Partner, p.LMS, FieldInterest),
	}
}

// foldBalances is pass 2. pairs must be sorted by key so each loan's
// instalments are contiguous and ascending.
func foldBalances(pairs []JoinedPair) {
	var (
		loan  LoanID
		carry Money
	)
	for i := range pairs {
		p := &pairs[i]
		if i == 0 || p.Key.LoanID != loan {
			loan = p.Key.LoanID
			carry = NullMoney
		}
		p.PreviousBalance = carry

		switch {
		case p.Frozen:
			// Adjusted already equals LMS verbatim.
		case carry.Valid && p.Adjusted.Principal.Valid:
			p.Adjusted.BalanceOutstanding = MoneySub(carry, p.Adjusted.Principal)
		case p.Partner != nil:
			p.Adjusted.BalanceOutstanding = p.Partner.BalanceOutstanding
		case p.LMS != nil:
			p.Adjusted.BalanceOutstanding = p.LMS.BalanceOutstanding
		}

		if !p.Frozen {
			p.Changed = p.LMS == nil || !p.Adjusted.equal(valuesOf(*p.LMS))
		}
		carry = p.Adjusted.BalanceOutstanding
	}
}
