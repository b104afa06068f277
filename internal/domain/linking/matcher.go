package linking

import (
	"sort"
	"time"
)

// MatchGroup pairs the notifications and outcomes of a single group.
//
// The forward pass picks, for every notification, the earliest outcome dated
// no more than toleranceDays before it. The backward pass picks, for every
// outcome, the latest notification dated no more than toleranceDays after it.
// Pairs chosen by both passes are high confidence. A notification left
// without a high link keeps its forward candidate at medium confidence, but
// only when no other unclaimed notification competes for that outcome.
//
// Equal dates are broken by the smaller record id. Callers are expected to
// pass records that already satisfy Record.Validate. The result is sorted by
// (NotificationID, OutcomeID) and is identical for identical input.
func MatchGroup(notifications, outcomes []Record, toleranceDays int) []Match {
	if len(notifications) == 0 || len(outcomes) == 0 {
		return nil
	}

	ns := sortedByDate(notifications)
	outs := sortedByDate(outcomes)

	forward := make(map[uint64]Record, len(ns))
	for _, n := range ns {
		if o, ok := earliestOnOrAfter(outs, n.Date.AddDate(0, 0, -toleranceDays)); ok {
			forward[n.ID] = o
		}
	}

	backward := make(map[uint64]Record, len(outs))
	for _, o := range outs {
		if n, ok := latestOnOrBefore(ns, o.Date.AddDate(0, 0, toleranceDays)); ok {
			backward[o.ID] = n
		}
	}

	matches := make([]Match, 0, len(forward))
	claimed := make(map[uint64]struct{}, len(forward))
	for _, n := range ns {
		o, ok := forward[n.ID]
		if !ok {
			continue
		}
		if back, ok := backward[o.ID]; ok && back.ID == n.ID {
			matches = append(matches, newMatch(n, o, ConfidenceHigh))
			claimed[n.ID] = struct{}{}
		}
	}

	contenders := make(map[uint64][]Record)
	for _, n := range ns {
		if _, ok := claimed[n.ID]; ok {
			continue
		}
		if o, ok := forward[n.ID]; ok {
			contenders[o.ID] = append(contenders[o.ID], n)
		}
	}
	for _, o := range outs {
		if pending := contenders[o.ID]; len(pending) == 1 {
			matches = append(matches, newMatch(pending[0], o, ConfidenceMedium))
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].NotificationID != matches[j].NotificationID {
			return matches[i].NotificationID < matches[j].NotificationID
		}
		return matches[i].OutcomeID < matches[j].OutcomeID
	})
	return matches
}

// CountByConfidence tallies matches per confidence tier.
func CountByConfidence(matches []Match) (high int, medium int) {
	for _, m := range matches {
		switch m.Confidence {
		case ConfidenceHigh:
			high++
		case ConfidenceMedium:
			medium++
		}
	}
	return high, medium
}

func newMatch(n, o Record, confidence Confidence) Match {
	return Match{
		NotificationID: n.ID,
		OutcomeID:      o.ID,
		Confidence:     confidence,
		DaysGap:        DaysBetween(n.Date, o.Date),
	}
}

func sortedByDate(in []Record) []Record {
	out := make([]Record, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// earliestOnOrAfter expects records sorted by (date, id).
func earliestOnOrAfter(records []Record, threshold time.Time) (Record, bool) {
	idx := sort.Search(len(records), func(i int) bool {
		return !records[i].Date.Before(threshold)
	})
	if idx == len(records) {
		return Record{}, false
	}
	return records[idx], true
}

// latestOnOrBefore expects records sorted by (date, id) and returns the
// smallest id among the records sharing the latest qualifying date.
func latestOnOrBefore(records []Record, limit time.Time) (Record, bool) {
	end := sort.Search(len(records), func(i int) bool {
		return records[i].Date.After(limit)
	})
	if end == 0 {
		return Record{}, false
	}
	latest := records[end-1].Date
	first := sort.Search(end, func(i int) bool {
		return !records[i].Date.Before(latest)
	})
	return records[first], true
}
