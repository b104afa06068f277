package linking

import (
	"sort"
	"time"

	domain "licenselink/internal/domain/linking"
	"licenselink/internal/ports"
)

// recordFromRow converts a stored row. An unparsable date is left zero and
// caught by Record.Validate.
func recordFromRow(row ports.LicenseRecord) (domain.Record, error) {
	kind, err := domain.ParseKind(row.Kind)
	if err != nil {
		return domain.Record{}, err
	}

	date, err := domain.ParseDate(row.EventDate)
	if err != nil {
		date = time.Time{}
	}
	return domain.Record{
		ID:            row.ID,
		Kind:          kind,
		LicenseNumber: row.LicenseNumber,
		Category:      row.ApplicationType,
		Date:          date,
	}, nil
}

// matchableRecord converts a row and rejects it when it cannot take part in
// matching.
func matchableRecord(row ports.LicenseRecord) (domain.Record, error) {
	rec, err := recordFromRow(row)
	if err != nil {
		return domain.Record{}, err
	}
	if err := rec.Validate(); err != nil {
		return domain.Record{}, err
	}
	return rec, nil
}

func linkedOutcome(view ports.LinkView) (*domain.LinkedOutcome, error) {
	kind, err := domain.ParseKind(view.OutcomeKind)
	if err != nil {
		return nil, err
	}
	confidence, err := domain.ParseConfidence(view.Confidence)
	if err != nil {
		return nil, err
	}
	date, err := domain.ParseDate(view.OutcomeDate)
	if err != nil {
		date = time.Time{}
	}
	return &domain.LinkedOutcome{
		OutcomeID:   view.OutcomeID,
		OutcomeKind: kind,
		OutcomeDate: date,
		Confidence:  confidence,
		DaysGap:     view.DaysGap,
	}, nil
}

func toRecordLinks(matches []domain.Match, createdAt string) []ports.RecordLink {
	out := make([]ports.RecordLink, 0, len(matches))
	for _, m := range matches {
		out = append(out, ports.RecordLink{
			NotificationID: m.NotificationID,
			OutcomeID:      m.OutcomeID,
			Confidence:     string(m.Confidence),
			DaysGap:        m.DaysGap,
			CreatedAt:      createdAt,
		})
	}
	return out
}

func sortLinks(links []ports.RecordLink) {
	sort.Slice(links, func(i, j int) bool {
		if links[i].NotificationID != links[j].NotificationID {
			return links[i].NotificationID < links[j].NotificationID
		}
		return links[i].OutcomeID < links[j].OutcomeID
	})
}

// passSelectors returns the record filters for one pass: its notification
// categories and the outcomes they pair with.
func passSelectors(pass domain.Pass) []ports.RecordSelector {
	outcomeCategories := pass.Categories
	if pass.OutcomeCategory != "" {
		outcomeCategories = []string{pass.OutcomeCategory}
	}
	return []ports.RecordSelector{
		{Kind: string(domain.KindNotification), Categories: pass.Categories},
		{Kind: string(pass.OutcomeKind), Categories: outcomeCategories},
	}
}

// groupSelectors narrows a pass to the single category of key.
func (s *Service) groupSelectors(key domain.GroupKey, pass domain.Pass) []ports.RecordSelector {
	return []ports.RecordSelector{
		{Kind: string(domain.KindNotification), Categories: []string{key.Category}},
		{Kind: string(pass.OutcomeKind), Categories: []string{s.policy.OutcomeCategory(key)}},
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
