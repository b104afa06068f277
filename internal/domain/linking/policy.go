package linking

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultToleranceDays     = 7
	DefaultPendingCutoffDays = 180

	PassApproval       = "approval"
	PassDiscontinuance = "discontinuance"
)

// Pass is one independent matching pairing: notifications in Categories are
// matched against outcomes of OutcomeKind. When OutcomeCategory is empty the
// outcome must carry the same category as the notification.
type Pass struct {
	Name            string
	OutcomeKind     Kind
	Categories      []string
	OutcomeCategory string
	// ToleranceDays overrides Policy.ToleranceDays for this pass when set.
	ToleranceDays *int
}

func (p Pass) hasCategory(category string) bool {
	for _, c := range p.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// outcomeCategoryFor returns the outcome category paired with a notification category.
func (p Pass) outcomeCategoryFor(category string) string {
	if p.OutcomeCategory != "" {
		return p.OutcomeCategory
	}
	return category
}

// DataGap marks notifications of Category dated after Cutoff as affected by a
// known publication gap on the regulator side.
type DataGap struct {
	Category string
	Cutoff   time.Time
	Detail   string
}

type Policy struct {
	ToleranceDays     int
	PendingCutoffDays int
	Passes            []Pass
	// DataGaps is evaluated in order; the first entry for a category whose
	// cutoff precedes the record date wins.
	DataGaps []DataGap
}

// DefaultPolicy mirrors the reference deployment.
func DefaultPolicy() Policy {
	return Policy{
		ToleranceDays:     DefaultToleranceDays,
		PendingCutoffDays: DefaultPendingCutoffDays,
		Passes: []Pass{
			{
				Name:        PassApproval,
				OutcomeKind: KindOutcomeApproved,
				Categories: []string{
					"RENEWAL",
					"NEW APPLICATION",
					"ASSUMPTION",
					"ADDED/CHANGE OF CLASS",
					"CHANGE OF CORPORATE OFFICER",
					"CHANGE OF LOCATION",
					"RESUME BUSINESS",
					"IN LIEU",
				},
			},
			{
				Name:            PassDiscontinuance,
				OutcomeKind:     KindOutcomeDiscontinued,
				Categories:      []string{"DISC. LIQUOR SALES"},
				OutcomeCategory: "DISCONTINUED",
			},
		},
		DataGaps: []DataGap{
			{
				Category: "NEW APPLICATION",
				Cutoff:   time.Date(2025, time.May, 12, 0, 0, 0, 0, time.UTC),
				Detail:   "The regulator stopped publishing NEW APPLICATION approvals after May 2025 due to a data transfer issue.",
			},
		},
	}
}

// Validate checks that passes are disjoint, so that no record can belong to
// two matching partitions.
func (p Policy) Validate() error {
	if p.ToleranceDays < 0 {
		return fmt.Errorf("%w: tolerance_days must be >= 0", ErrInvalidPolicy)
	}
	if p.PendingCutoffDays < 0 {
		return fmt.Errorf("%w: pending_cutoff_days must be >= 0", ErrInvalidPolicy)
	}

	names := make(map[string]struct{}, len(p.Passes))
	categoryOwner := make(map[string]string)
	outcomeOwner := make(map[string]string)

	for i, pass := range p.Passes {
		name := strings.TrimSpace(pass.Name)
		if name == "" {
			return fmt.Errorf("%w: passes[%d].name is required", ErrInvalidPolicy, i)
		}
		if _, dup := names[name]; dup {
			return fmt.Errorf("%w: duplicate pass %q", ErrInvalidPolicy, name)
		}
		names[name] = struct{}{}

		if !pass.OutcomeKind.IsOutcome() {
			return fmt.Errorf("%w: pass %q outcome_kind %q is not an outcome kind", ErrInvalidPolicy, name, pass.OutcomeKind)
		}
		if len(pass.Categories) == 0 {
			return fmt.Errorf("%w: pass %q has no categories", ErrInvalidPolicy, name)
		}
		if pass.OutcomeCategory != "" && len(pass.Categories) != 1 {
			return fmt.Errorf("%w: pass %q with outcome_category must have exactly one category", ErrInvalidPolicy, name)
		}
		if pass.ToleranceDays != nil && *pass.ToleranceDays < 0 {
			return fmt.Errorf("%w: pass %q tolerance_days must be >= 0", ErrInvalidPolicy, name)
		}

		for _, category := range pass.Categories {
			if strings.TrimSpace(category) == "" {
				return fmt.Errorf("%w: pass %q has an empty category", ErrInvalidPolicy, name)
			}
			if owner, ok := categoryOwner[category]; ok {
				return fmt.Errorf("%w: category %q claimed by passes %q and %q", ErrInvalidPolicy, category, owner, name)
			}
			categoryOwner[category] = name

			outcomeKey := string(pass.OutcomeKind) + "/" + pass.outcomeCategoryFor(category)
			if owner, ok := outcomeOwner[outcomeKey]; ok {
				return fmt.Errorf("%w: outcome %q claimed by passes %q and %q", ErrInvalidPolicy, outcomeKey, owner, name)
			}
			outcomeOwner[outcomeKey] = name
		}
	}

	for i, gap := range p.DataGaps {
		if strings.TrimSpace(gap.Category) == "" {
			return fmt.Errorf("%w: data_gaps[%d].category is required", ErrInvalidPolicy, i)
		}
		if gap.Cutoff.IsZero() {
			return fmt.Errorf("%w: data_gaps[%d].cutoff is required", ErrInvalidPolicy, i)
		}
		if _, ok := categoryOwner[gap.Category]; !ok {
			return fmt.Errorf("%w: data_gaps[%d].category %q is not linked by any pass", ErrInvalidPolicy, i, gap.Category)
		}
	}
	return nil
}

func (p Policy) PassByName(name string) (Pass, bool) {
	for _, pass := range p.Passes {
		if pass.Name == name {
			return pass, true
		}
	}
	return Pass{}, false
}

// Tolerance returns the tolerance window in days for a pass.
func (p Policy) Tolerance(pass Pass) int {
	if pass.ToleranceDays != nil {
		return *pass.ToleranceDays
	}
	return p.ToleranceDays
}

// IsLinkable reports whether notifications of category take part in matching.
func (p Policy) IsLinkable(category string) bool {
	_, ok := p.passForNotification(category)
	return ok
}

// GroupFor returns the matching partition a record belongs to. Records of
// excluded categories, or outcomes nobody pairs with, have no group.
func (p Policy) GroupFor(r Record) (GroupKey, bool) {
	if strings.TrimSpace(r.LicenseNumber) == "" {
		return GroupKey{}, false
	}

	if r.Kind == KindNotification {
		pass, ok := p.passForNotification(r.Category)
		if !ok {
			return GroupKey{}, false
		}
		return GroupKey{Pass: pass.Name, LicenseNumber: r.LicenseNumber, Category: r.Category}, true
	}

	for _, pass := range p.Passes {
		if pass.OutcomeKind != r.Kind {
			continue
		}
		if pass.OutcomeCategory != "" {
			if pass.OutcomeCategory == r.Category {
				return GroupKey{Pass: pass.Name, LicenseNumber: r.LicenseNumber, Category: pass.Categories[0]}, true
			}
			continue
		}
		if pass.hasCategory(r.Category) {
			return GroupKey{Pass: pass.Name, LicenseNumber: r.LicenseNumber, Category: r.Category}, true
		}
	}
	return GroupKey{}, false
}

// OutcomeCategory returns the outcome category matched inside a group.
func (p Policy) OutcomeCategory(key GroupKey) string {
	pass, ok := p.PassByName(key.Pass)
	if !ok {
		return key.Category
	}
	return pass.outcomeCategoryFor(key.Category)
}

// DataGapFor returns the first data gap entry covering a notification.
func (p Policy) DataGapFor(category string, date time.Time) (DataGap, bool) {
	if date.IsZero() {
		return DataGap{}, false
	}
	for _, gap := range p.DataGaps {
		if gap.Category == category && date.After(gap.Cutoff) {
			return gap, true
		}
	}
	return DataGap{}, false
}

func (p Policy) passForNotification(category string) (Pass, bool) {
	for _, pass := range p.Passes {
		if pass.hasCategory(category) {
			return pass, true
		}
	}
	return Pass{}, false
}
