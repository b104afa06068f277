package linking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"licenselink/internal/bootstrap/logging"
	domain "licenselink/internal/domain/linking"
	"licenselink/internal/errs"
	"licenselink/internal/ports"
)

const (
	ViolationDuplicateHigh   = "duplicate_high"
	ViolationMediumWithHigh  = "medium_with_high"
	ViolationDangling        = "dangling"
	ViolationOutsideAnyGroup = "outside_group"
)

// Drift is a group whose stored links differ from a fresh computation.
type Drift struct {
	Group      domain.GroupKey
	Missing    []ports.RecordLink
	Unexpected []ports.RecordLink
}

type Violation struct {
	Kind string
	Link ports.RecordLink
	Note string
}

type VerifyReport struct {
	GroupsChecked int
	LinksChecked  int
	Drifts        []Drift
	Violations    []Violation
}

func (r VerifyReport) OK() bool {
	return len(r.Drifts) == 0 && len(r.Violations) == 0
}

// Verify recomputes every group and checks the stored link table against
// the result and against the structural rules of a link set.
func (s *Service) Verify(ctx context.Context) (VerifyReport, error) {
	if ctx == nil {
		return VerifyReport{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return VerifyReport{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "usecase.linking"), slog.String("op", "verify"))

	var report VerifyReport
	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		keys, err := s.groupKeys(txCtx)
		if err != nil {
			return err
		}

		covered := make(map[uint64]struct{})
		for _, key := range keys {
			drift, ids, err := s.checkGroup(txCtx, key)
			if err != nil {
				return err
			}
			for _, id := range ids {
				covered[id] = struct{}{}
			}
			if drift != nil {
				report.Drifts = append(report.Drifts, *drift)
			}
		}
		report.GroupsChecked = len(keys)

		stored, err := s.links.ListLinks(txCtx)
		if err != nil {
			return errs.Wrap(err, "list links")
		}
		report.LinksChecked = len(stored)
		report.Violations = append(report.Violations, structuralViolations(stored)...)

		dangling, err := s.links.ListDanglingLinks(txCtx)
		if err != nil {
			return errs.Wrap(err, "list dangling links")
		}
		danglingPairs := make(map[[2]uint64]struct{}, len(dangling))
		for _, link := range dangling {
			danglingPairs[[2]uint64{link.NotificationID, link.OutcomeID}] = struct{}{}
			report.Violations = append(report.Violations, Violation{
				Kind: ViolationDangling,
				Link: link,
				Note: "link references a record that no longer exists",
			})
		}

		for _, link := range stored {
			if _, ok := danglingPairs[[2]uint64{link.NotificationID, link.OutcomeID}]; ok {
				continue
			}
			_, nOK := covered[link.NotificationID]
			_, oOK := covered[link.OutcomeID]
			if !nOK || !oOK {
				report.Violations = append(report.Violations, Violation{
					Kind: ViolationOutsideAnyGroup,
					Link: link,
					Note: "link joins records no matching pass pairs",
				})
			}
		}
		return nil
	})
	if err != nil {
		return VerifyReport{}, errs.Wrap(err, "verify links")
	}

	logging.Info(logCtx, "verify completed",
		slog.Int("groups", report.GroupsChecked),
		slog.Int("links", report.LinksChecked),
		slog.Int("drifts", len(report.Drifts)),
		slog.Int("violations", len(report.Violations)),
	)
	return report, nil
}

// groupKeys lists every group with at least one record, in a stable order.
func (s *Service) groupKeys(ctx context.Context) ([]domain.GroupKey, error) {
	seen := make(map[domain.GroupKey]struct{})
	for _, pass := range s.policy.Passes {
		refs, err := s.records.ListGroupKeys(ctx, passSelectors(pass))
		if err != nil {
			return nil, errs.Wrapf(err, "list group keys for pass %s", pass.Name)
		}
		for _, ref := range refs {
			kind, err := domain.ParseKind(ref.Kind)
			if err != nil {
				continue
			}
			key, ok := s.policy.GroupFor(domain.Record{
				Kind:          kind,
				LicenseNumber: ref.LicenseNumber,
				Category:      ref.ApplicationType,
			})
			if ok && key.Pass == pass.Name {
				seen[key] = struct{}{}
			}
		}
	}

	keys := make([]domain.GroupKey, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys, nil
}

// checkGroup compares stored and recomputed links of one group. It returns
// the ids of every record in the group.
func (s *Service) checkGroup(ctx context.Context, key domain.GroupKey) (*Drift, []uint64, error) {
	pass, ok := s.policy.PassByName(key.Pass)
	if !ok {
		return nil, nil, errs.Wrapf(domain.ErrInvalidPolicy, "unknown pass %q", key.Pass)
	}

	rows, err := s.records.ListGroup(ctx, key.LicenseNumber, s.groupSelectors(key, pass))
	if err != nil {
		return nil, nil, errs.Wrapf(err, "list group %s", key)
	}
	notifications, outcomes, notificationIDs, outcomeIDs := s.splitGroup(ctx, rows)
	want := domain.MatchGroup(notifications, outcomes, s.policy.Tolerance(pass))

	got, err := s.links.ListLinksForRecords(ctx, notificationIDs, outcomeIDs)
	if err != nil {
		return nil, nil, errs.Wrapf(err, "list links of group %s", key)
	}

	ids := append(append([]uint64{}, notificationIDs...), outcomeIDs...)
	missing, unexpected := diffLinks(toRecordLinks(want, ""), got)
	if len(missing) == 0 && len(unexpected) == 0 {
		return nil, ids, nil
	}
	return &Drift{Group: key, Missing: missing, Unexpected: unexpected}, ids, nil
}

// diffLinks compares link sets by pair, confidence and gap.
func diffLinks(want, got []ports.RecordLink) ([]ports.RecordLink, []ports.RecordLink) {
	type linkKey struct {
		n, o       uint64
		confidence string
		gap        int
	}
	keyOf := func(l ports.RecordLink) linkKey {
		return linkKey{l.NotificationID, l.OutcomeID, l.Confidence, l.DaysGap}
	}

	gotSet := make(map[linkKey]struct{}, len(got))
	for _, l := range got {
		gotSet[keyOf(l)] = struct{}{}
	}
	wantSet := make(map[linkKey]struct{}, len(want))
	var missing []ports.RecordLink
	for _, l := range want {
		wantSet[keyOf(l)] = struct{}{}
		if _, ok := gotSet[keyOf(l)]; !ok {
			missing = append(missing, l)
		}
	}
	var unexpected []ports.RecordLink
	for _, l := range got {
		if _, ok := wantSet[keyOf(l)]; !ok {
			unexpected = append(unexpected, l)
		}
	}
	sortLinks(missing)
	sortLinks(unexpected)
	return missing, unexpected
}

// structuralViolations checks rules any valid link set satisfies: a record
// is in at most one high link, and a notification with a high link has no
// medium link.
func structuralViolations(links []ports.RecordLink) []Violation {
	highByNotification := make(map[uint64]int)
	highByOutcome := make(map[uint64]int)
	for _, l := range links {
		if l.Confidence != string(domain.ConfidenceHigh) {
			continue
		}
		highByNotification[l.NotificationID]++
		highByOutcome[l.OutcomeID]++
	}

	var out []Violation
	for _, l := range links {
		switch l.Confidence {
		case string(domain.ConfidenceHigh):
			if highByNotification[l.NotificationID] > 1 {
				out = append(out, Violation{
					Kind: ViolationDuplicateHigh,
					Link: l,
					Note: fmt.Sprintf("notification %d has %d high links", l.NotificationID, highByNotification[l.NotificationID]),
				})
			}
			if highByOutcome[l.OutcomeID] > 1 {
				out = append(out, Violation{
					Kind: ViolationDuplicateHigh,
					Link: l,
					Note: fmt.Sprintf("outcome %d has %d high links", l.OutcomeID, highByOutcome[l.OutcomeID]),
				})
			}
		case string(domain.ConfidenceMedium):
			if highByNotification[l.NotificationID] > 0 {
				out = append(out, Violation{
					Kind: ViolationMediumWithHigh,
					Link: l,
					Note: fmt.Sprintf("notification %d has both high and medium links", l.NotificationID),
				})
			}
		}
	}
	return out
}
