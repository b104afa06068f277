package linking

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusApproved     Status = "approved"
	StatusDiscontinued Status = "discontinued"
	StatusPending      Status = "pending"
	StatusUnknown      Status = "unknown"
	StatusDataGap      Status = "data_gap"
)

// AllStatuses lists statuses in reporting order.
var AllStatuses = []Status{StatusApproved, StatusDiscontinued, StatusPending, StatusDataGap, StatusUnknown}

// LinkedOutcome is the stored link of a notification joined with the outcome
// record it points at.
type LinkedOutcome struct {
	OutcomeID   uint64
	OutcomeKind Kind
	OutcomeDate time.Time
	Confidence  Confidence
	DaysGap     int
}

// OutcomeStatus is derived on every read and never persisted.
type OutcomeStatus struct {
	Status          Status
	Detail          string
	LinkConfidence  Confidence
	OutcomeRecordID uint64
	OutcomeDate     time.Time
	DaysGap         int
}

// Linked reports whether the status came from a stored link.
func (s OutcomeStatus) Linked() bool {
	return s.OutcomeRecordID != 0
}

type StatusResolver struct {
	policy Policy
}

func NewStatusResolver(policy Policy) StatusResolver {
	return StatusResolver{policy: policy}
}

// Resolve derives the lifecycle status of a notification. Only high and
// medium links count; anything else resolves as if no link existed.
func (r StatusResolver) Resolve(n Record, link *LinkedOutcome, today time.Time) (OutcomeStatus, error) {
	if n.Kind != KindNotification {
		return OutcomeStatus{}, fmt.Errorf("%w: record %d is %s", ErrNotNotification, n.ID, n.Kind)
	}

	if link != nil && (link.Confidence == ConfidenceHigh || link.Confidence == ConfidenceMedium) {
		switch link.OutcomeKind {
		case KindOutcomeApproved:
			return linkedStatus(StatusApproved, "Approved", "application", link), nil
		case KindOutcomeDiscontinued:
			return linkedStatus(StatusDiscontinued, "Discontinued", "filing", link), nil
		}
	}

	// Excluded categories never link, so a gap cannot explain a missing outcome.
	if gap, ok := r.policy.DataGapFor(n.Category, n.Date); ok && r.policy.IsLinkable(n.Category) {
		detail := gap.Detail
		if detail == "" {
			detail = fmt.Sprintf("The regulator stopped publishing outcomes for %s records after %s.", gap.Category, FormatDate(gap.Cutoff))
		}
		return OutcomeStatus{Status: StatusDataGap, Detail: detail}, nil
	}

	if !n.Date.IsZero() {
		age := DaysBetween(n.Date, today)
		if age <= r.policy.PendingCutoffDays {
			return OutcomeStatus{
				Status: StatusPending,
				Detail: pendingDetail(age, n.Date),
			}, nil
		}
	}

	return OutcomeStatus{
		Status: StatusUnknown,
		Detail: "No matching approved or discontinued record was found.",
	}, nil
}

func linkedStatus(status Status, verb string, anchor string, link *LinkedOutcome) OutcomeStatus {
	detail := verb
	if !link.OutcomeDate.IsZero() {
		detail += " on " + FormatDate(link.OutcomeDate)
	}
	switch {
	case link.DaysGap > 0:
		detail += fmt.Sprintf(" (%s after %s)", pluralDays(link.DaysGap), anchor)
	case link.DaysGap < 0:
		detail += fmt.Sprintf(" (%s before %s)", pluralDays(-link.DaysGap), anchor)
	default:
		detail += " (same day as " + anchor + ")"
	}

	return OutcomeStatus{
		Status:          status,
		Detail:          detail,
		LinkConfidence:  link.Confidence,
		OutcomeRecordID: link.OutcomeID,
		OutcomeDate:     link.OutcomeDate,
		DaysGap:         link.DaysGap,
	}
}

func pendingDetail(age int, filed time.Time) string {
	const typical = " Typical time to approval: 50-90 days."
	switch {
	case age < 0:
		return "Filing date " + FormatDate(filed) + " is in the future." + typical
	case age == 0:
		return "Filed today." + typical
	default:
		return "Filed " + pluralDays(age) + " ago." + typical
	}
}

func pluralDays(n int) string {
	if n == 1 || n == -1 {
		return fmt.Sprintf("%d day", n)
	}
	return fmt.Sprintf("%d days", n)
}
