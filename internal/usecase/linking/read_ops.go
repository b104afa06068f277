package linking

import (
	"context"
	"errors"
	"fmt"

	domain "licenselink/internal/domain/linking"
	"licenselink/internal/errs"
	"licenselink/internal/ports"
)

// GetLink returns the preferred stored link of a notification. found is
// false when the notification has no link.
func (s *Service) GetLink(ctx context.Context, notificationID uint64) (ports.LinkView, bool, error) {
	if ctx == nil {
		return ports.LinkView{}, false, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return ports.LinkView{}, false, errs.Wrap(err, "check context")
	}

	view, err := s.links.GetLink(ctx, notificationID)
	if err != nil {
		if errors.Is(err, ports.ErrLinkNotFound) {
			return ports.LinkView{}, false, nil
		}
		return ports.LinkView{}, false, errs.Wrapf(err, "get link of record %d", notificationID)
	}
	return view, true, nil
}

// GetOutcomeStatus derives the lifecycle status of one notification from its
// current link and the policy.
func (s *Service) GetOutcomeStatus(ctx context.Context, notificationID uint64) (domain.OutcomeStatus, error) {
	if ctx == nil {
		return domain.OutcomeStatus{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return domain.OutcomeStatus{}, errs.Wrap(err, "check context")
	}

	row, err := s.records.GetRecord(ctx, notificationID)
	if err != nil {
		return domain.OutcomeStatus{}, errs.Wrapf(err, "get record %d", notificationID)
	}
	rec, err := recordFromRow(row)
	if err != nil {
		return domain.OutcomeStatus{}, errs.Wrapf(err, "read record %d", notificationID)
	}
	if rec.Kind != domain.KindNotification {
		return domain.OutcomeStatus{}, fmt.Errorf("%w: record %d is %s", domain.ErrNotNotification, rec.ID, rec.Kind)
	}

	var link *domain.LinkedOutcome
	view, found, err := s.GetLink(ctx, notificationID)
	if err != nil {
		return domain.OutcomeStatus{}, err
	}
	if found {
		link, err = linkedOutcome(view)
		if err != nil {
			return domain.OutcomeStatus{}, errs.Wrapf(err, "read link of record %d", notificationID)
		}
	}
	return s.resolver.Resolve(rec, link, s.Today())
}

// AnnotateStatuses resolves a page of records in two queries. Ids that are
// missing or not notifications are left out of the result.
func (s *Service) AnnotateStatuses(ctx context.Context, ids []uint64) (map[uint64]domain.OutcomeStatus, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	rows, err := s.records.ListRecordsByID(ctx, ids)
	if err != nil {
		return nil, errs.Wrap(err, "list records")
	}
	return s.resolveRows(ctx, rows)
}

func (s *Service) resolveRows(ctx context.Context, rows []ports.LicenseRecord) (map[uint64]domain.OutcomeStatus, error) {
	notifications := make([]domain.Record, 0, len(rows))
	ids := make([]uint64, 0, len(rows))
	for _, row := range rows {
		if row.Kind != string(domain.KindNotification) {
			continue
		}
		rec, err := recordFromRow(row)
		if err != nil {
			return nil, errs.Wrapf(err, "read record %d", row.ID)
		}
		notifications = append(notifications, rec)
		ids = append(ids, rec.ID)
	}

	views, err := s.links.GetLinks(ctx, ids)
	if err != nil {
		return nil, errs.Wrap(err, "get links")
	}

	today := s.Today()
	out := make(map[uint64]domain.OutcomeStatus, len(notifications))
	for _, rec := range notifications {
		var link *domain.LinkedOutcome
		if view, ok := views[rec.ID]; ok {
			link, err = linkedOutcome(view)
			if err != nil {
				return nil, errs.Wrapf(err, "read link of record %d", rec.ID)
			}
		}
		status, err := s.resolver.Resolve(rec, link, today)
		if err != nil {
			return nil, err
		}
		out[rec.ID] = status
	}
	return out, nil
}

// GetReverseLink returns the notification an outcome was linked from.
func (s *Service) GetReverseLink(ctx context.Context, outcomeID uint64) (ports.ReverseLinkView, bool, error) {
	if ctx == nil {
		return ports.ReverseLinkView{}, false, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return ports.ReverseLinkView{}, false, errs.Wrap(err, "check context")
	}

	view, err := s.links.GetReverseLink(ctx, outcomeID)
	if err != nil {
		if errors.Is(err, ports.ErrLinkNotFound) {
			return ports.ReverseLinkView{}, false, nil
		}
		return ports.ReverseLinkView{}, false, errs.Wrapf(err, "get reverse link of record %d", outcomeID)
	}
	return view, true, nil
}

// GetRecord exposes the stored record for callers that render it.
func (s *Service) GetRecord(ctx context.Context, id uint64) (ports.LicenseRecord, error) {
	if ctx == nil {
		return ports.LicenseRecord{}, errors.New("context is required")
	}
	return s.records.GetRecord(ctx, id)
}
