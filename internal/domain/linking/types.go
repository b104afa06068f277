package linking

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for event dates and cutoffs.
const DateLayout = "2006-01-02"

type Kind string

const (
	KindNotification        Kind = "notification"
	KindOutcomeApproved     Kind = "outcome_approved"
	KindOutcomeDiscontinued Kind = "outcome_discontinued"
)

func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindNotification, KindOutcomeApproved, KindOutcomeDiscontinued:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

func (k Kind) IsOutcome() bool {
	return k == KindOutcomeApproved || k == KindOutcomeDiscontinued
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	// ConfidenceLow is accepted by the link table but never produced by Match.
	ConfidenceLow Confidence = "low"
)

func ParseConfidence(raw string) (Confidence, error) {
	switch c := Confidence(strings.ToLower(strings.TrimSpace(raw))); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownConfidence, raw)
	}
}

// Record is the read-only view of a license record the engine matches on.
type Record struct {
	ID            uint64
	Kind          Kind
	LicenseNumber string
	Category      string
	Date          time.Time
}

// Validate reports why a record cannot take part in matching.
func (r Record) Validate() error {
	switch {
	case r.ID == 0:
		return fmt.Errorf("%w: missing id", ErrMalformedRecord)
	case strings.TrimSpace(r.LicenseNumber) == "":
		return fmt.Errorf("%w: record %d has no license number", ErrMalformedRecord, r.ID)
	case strings.TrimSpace(r.Category) == "":
		return fmt.Errorf("%w: record %d has no application type", ErrMalformedRecord, r.ID)
	case r.Date.IsZero():
		return fmt.Errorf("%w: record %d has no event date", ErrMalformedRecord, r.ID)
	}
	return nil
}

// GroupKey scopes candidate matching: one license number, one notification
// category, inside one matching pass.
type GroupKey struct {
	Pass          string
	LicenseNumber string
	Category      string
}

func (k GroupKey) String() string {
	return k.Pass + "|" + k.LicenseNumber + "|" + k.Category
}

// Match is one link produced by the matcher.
type Match struct {
	NotificationID uint64
	OutcomeID      uint64
	Confidence     Confidence
	DaysGap        int
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// DaysBetween returns to - from in whole calendar days.
func DaysBetween(from, to time.Time) int {
	from = truncateDay(from)
	to = truncateDay(to)
	return int(to.Sub(from).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
