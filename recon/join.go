package recon

import "sort"

// =============================================================================
// KEYED INDEX - First-seen wins, later occurrences become warnings
// =============================================================================

type keyedIndex struct {
	byKey map[Key]InstalmentRecord
}

func indexRecords(kind SourceKind, records []InstalmentRecord) (keyedIndex, []*DuplicateKeyWarning) {
	idx := keyedIndex{byKey: make(map[Key]InstalmentRecord, len(records))}
	var dups []*DuplicateKeyWarning
	for _, rec := range records {
		k := rec.Key()
		if first, ok := idx.byKey[k]; ok {
			dups = append(dups, &DuplicateKeyWarning{Source: kind, Key: k, Row: rec.Row, FirstRow: first.Row})
			continue
		}
		idx.byKey[k] = rec
	}
	return idx, dups
}

func (ix keyedIndex) get(k Key) *InstalmentRecord {
	rec, ok := ix.byKey[k]
	if !ok {
		return nil
	}
	return &rec
}

// =============================================================================
// OUTER JOIN
// =============================================================================

// outerJoin produces one pair per distinct key in partner ∪ lms, ordered by
// key. Pairs hold copies, never references into the caller's data.
func outerJoin(partner, lms keyedIndex) []JoinedPair {
	keys := make([]Key, 0, len(partner.byKey)+len(lms.byKey))
	for k := range partner.byKey {
		keys = append(keys, k)
	}
	for k := range lms.byKey {
		if _, ok := partner.byKey[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	pairs := make([]JoinedPair, 0, len(keys))
	for _, k := range keys {
		p := JoinedPair{Key: k, Partner: partner.get(k), LMS: lms.get(k)}
		switch {
		case p.Partner != nil && p.LMS != nil:
			p.State = StateBoth
		case p.Partner != nil:
			p.State = StatePartnerOnly
		default:
			p.State = StateLMSOnly
		}
		pairs = append(pairs, p)
	}
	return pairs
}

func sortUnmatched(recs []*UnmatchedSystemRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key.Less(recs[j].Key) })
}
