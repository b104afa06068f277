package linking

import (
	"math/rand"
	"testing"
	"time"
)

func rec(id uint64, kind Kind, date string) Record {
	d, err := ParseDate(date)
	if err != nil {
		panic(err)
	}
	return Record{ID: id, Kind: kind, LicenseNumber: "L001", Category: "RENEWAL", Date: d}
}

func notif(id uint64, date string) Record { return rec(id, KindNotification, date) }

func approved(id uint64, date string) Record { return rec(id, KindOutcomeApproved, date) }

func TestMatchGroupOutcomeBeforeNotificationIsHigh(t *testing.T) {
	got := MatchGroup(
		[]Record{notif(1, "2025-06-01")},
		[]Record{approved(2, "2025-05-30")},
		7,
	)
	if len(got) != 1 {
		t.Fatalf("MatchGroup() len = %d, want 1", len(got))
	}
	want := Match{NotificationID: 1, OutcomeID: 2, Confidence: ConfidenceHigh, DaysGap: -2}
	if got[0] != want {
		t.Fatalf("MatchGroup() = %+v, want %+v", got[0], want)
	}
}

func TestMatchGroupSharedOutcomeGivesMediumToLeftover(t *testing.T) {
	got := MatchGroup(
		[]Record{notif(1, "2025-01-01"), notif(2, "2025-01-10")},
		[]Record{approved(3, "2025-01-12")},
		7,
	)
	want := []Match{
		{NotificationID: 1, OutcomeID: 3, Confidence: ConfidenceMedium, DaysGap: 11},
		{NotificationID: 2, OutcomeID: 3, Confidence: ConfidenceHigh, DaysGap: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("MatchGroup() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("MatchGroup()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestMatchGroupContestedOutcomeGrantsNoMedium(t *testing.T) {
	got := MatchGroup(
		[]Record{notif(1, "2025-01-01"), notif(2, "2025-01-05"), notif(3, "2025-01-10")},
		[]Record{approved(4, "2025-01-12")},
		7,
	)
	if len(got) != 1 {
		t.Fatalf("MatchGroup() = %+v, want only the high link", got)
	}
	if got[0].NotificationID != 3 || got[0].Confidence != ConfidenceHigh {
		t.Fatalf("MatchGroup() = %+v", got[0])
	}
}

func TestMatchGroupOutsideToleranceNoLink(t *testing.T) {
	got := MatchGroup(
		[]Record{notif(1, "2025-06-20")},
		[]Record{approved(2, "2025-06-01")},
		7,
	)
	if len(got) != 0 {
		t.Fatalf("MatchGroup() = %+v, want none", got)
	}
}

func TestMatchGroupToleranceBoundaryIsInclusive(t *testing.T) {
	got := MatchGroup(
		[]Record{notif(1, "2025-06-08")},
		[]Record{approved(2, "2025-06-01")},
		7,
	)
	if len(got) != 1 || got[0].DaysGap != -7 || got[0].Confidence != ConfidenceHigh {
		t.Fatalf("MatchGroup() = %+v, want one high link with gap -7", got)
	}
}

func TestMatchGroupTiesBreakOnSmallestID(t *testing.T) {
	got := MatchGroup(
		[]Record{notif(1, "2025-03-01")},
		[]Record{approved(9, "2025-03-04"), approved(5, "2025-03-04")},
		7,
	)
	if len(got) != 1 || got[0].OutcomeID != 5 {
		t.Fatalf("MatchGroup() = %+v, want outcome 5", got)
	}

	got = MatchGroup(
		[]Record{notif(8, "2025-03-01"), notif(3, "2025-03-01")},
		[]Record{approved(10, "2025-03-04")},
		7,
	)
	if len(got) != 2 {
		t.Fatalf("MatchGroup() = %+v, want two links", got)
	}
	if got[0].NotificationID != 3 || got[0].Confidence != ConfidenceHigh {
		t.Fatalf("MatchGroup()[0] = %+v, want notification 3 high", got[0])
	}
	if got[1].NotificationID != 8 || got[1].Confidence != ConfidenceMedium {
		t.Fatalf("MatchGroup()[1] = %+v, want notification 8 medium", got[1])
	}
}

func TestMatchGroupEmptyInput(t *testing.T) {
	if got := MatchGroup(nil, []Record{approved(1, "2025-01-01")}, 7); got != nil {
		t.Fatalf("MatchGroup(nil, ...) = %+v", got)
	}
	if got := MatchGroup([]Record{notif(1, "2025-01-01")}, nil, 7); got != nil {
		t.Fatalf("MatchGroup(..., nil) = %+v", got)
	}
}

func TestMatchGroupProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	const tolerance = 7

	for round := 0; round < 300; round++ {
		var ns, outs []Record
		nextID := uint64(1)
		for i := rng.Intn(6); i >= 0; i-- {
			ns = append(ns, Record{ID: nextID, Kind: KindNotification, LicenseNumber: "L", Category: "RENEWAL", Date: base.AddDate(0, 0, rng.Intn(60))})
			nextID++
		}
		for i := rng.Intn(6); i >= 0; i-- {
			outs = append(outs, Record{ID: nextID, Kind: KindOutcomeApproved, LicenseNumber: "L", Category: "RENEWAL", Date: base.AddDate(0, 0, rng.Intn(60))})
			nextID++
		}

		got := MatchGroup(ns, outs, tolerance)

		byID := make(map[uint64]Record)
		for _, r := range append(append([]Record{}, ns...), outs...) {
			byID[r.ID] = r
		}

		highN := make(map[uint64]int)
		highO := make(map[uint64]int)
		for _, m := range got {
			n, o := byID[m.NotificationID], byID[m.OutcomeID]
			if o.Date.Before(n.Date.AddDate(0, 0, -tolerance)) {
				t.Fatalf("round %d: link %+v outside tolerance window", round, m)
			}
			if m.DaysGap != DaysBetween(n.Date, o.Date) {
				t.Fatalf("round %d: link %+v days gap mismatch", round, m)
			}
			if m.Confidence == ConfidenceHigh {
				highN[m.NotificationID]++
				highO[m.OutcomeID]++
			}
		}
		for id, c := range highN {
			if c > 1 {
				t.Fatalf("round %d: notification %d has %d high links", round, id, c)
			}
		}
		for id, c := range highO {
			if c > 1 {
				t.Fatalf("round %d: outcome %d has %d high links", round, id, c)
			}
		}
		for _, m := range got {
			if m.Confidence == ConfidenceMedium && highN[m.NotificationID] > 0 {
				t.Fatalf("round %d: notification %d has both high and medium links", round, m.NotificationID)
			}
		}

		// high iff both brute-force passes agree
		for _, n := range ns {
			fwd, ok := bruteForward(n, outs, tolerance)
			if !ok {
				continue
			}
			bwd, ok := bruteBackward(fwd, ns, tolerance)
			mutual := ok && bwd.ID == n.ID
			isHigh := false
			for _, m := range got {
				if m.NotificationID == n.ID && m.OutcomeID == fwd.ID && m.Confidence == ConfidenceHigh {
					isHigh = true
				}
			}
			if mutual != isHigh {
				t.Fatalf("round %d: notification %d mutual=%v high=%v", round, n.ID, mutual, isHigh)
			}
		}

		shuffledN := append([]Record{}, ns...)
		shuffledO := append([]Record{}, outs...)
		rng.Shuffle(len(shuffledN), func(i, j int) { shuffledN[i], shuffledN[j] = shuffledN[j], shuffledN[i] })
		rng.Shuffle(len(shuffledO), func(i, j int) { shuffledO[i], shuffledO[j] = shuffledO[j], shuffledO[i] })
		again := MatchGroup(shuffledN, shuffledO, tolerance)
		if len(again) != len(got) {
			t.Fatalf("round %d: result depends on input order", round)
		}
		for i := range got {
			if got[i] != again[i] {
				t.Fatalf("round %d: result depends on input order: %+v vs %+v", round, got[i], again[i])
			}
		}
	}
}

func bruteForward(n Record, outs []Record, tolerance int) (Record, bool) {
	var best Record
	found := false
	for _, o := range outs {
		if o.Date.Before(n.Date.AddDate(0, 0, -tolerance)) {
			continue
		}
		if !found || o.Date.Before(best.Date) || (o.Date.Equal(best.Date) && o.ID < best.ID) {
			best, found = o, true
		}
	}
	return best, found
}

func bruteBackward(o Record, ns []Record, tolerance int) (Record, bool) {
	var best Record
	found := false
	for _, n := range ns {
		if n.Date.After(o.Date.AddDate(0, 0, tolerance)) {
			continue
		}
		if !found || n.Date.After(best.Date) || (n.Date.Equal(best.Date) && n.ID < best.ID) {
			best, found = n, true
		}
	}
	return best, found
}
