package linking

import (
	"context"
	"errors"
	"log/slog"

	"licenselink/internal/bootstrap/logging"
	domain "licenselink/internal/domain/linking"
	"licenselink/internal/errs"
	"licenselink/internal/ports"
)

// LinkOne recomputes the links of the group a newly stored record belongs
// to. Links of other groups are untouched. Records that cannot be linked are
// logged and skipped without error.
func (s *Service) LinkOne(ctx context.Context, recordID uint64) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "usecase.linking"),
		slog.String("op", "link_one"),
		slog.Uint64("record_id", recordID),
	)

	row, err := s.records.GetRecord(ctx, recordID)
	if err != nil {
		s.observer.ObserveLinkOne("error")
		if errors.Is(err, ports.ErrRecordNotFound) {
			return errs.Wrapf(err, "link record %d", recordID)
		}
		return errs.MarkRetryable(errs.Wrapf(err, "load record %d", recordID))
	}

	rec, err := matchableRecord(row)
	if err != nil {
		s.observer.ObserveLinkOne("malformed")
		s.observer.ObserveExcluded("malformed", 1)
		logging.Warn(logCtx, "record excluded from matching", slog.Any("err", errs.Loggable(err)))
		return nil
	}

	key, ok := s.policy.GroupFor(rec)
	if !ok {
		s.observer.ObserveLinkOne("skipped")
		logging.Debug(logCtx, "record category is not linked", slog.String("category", rec.Category))
		return nil
	}

	written, err := s.relinkGroup(logCtx, key)
	if err != nil {
		s.observer.ObserveLinkOne("error")
		logging.Error(logCtx, "relink group failed", slog.String("group", key.String()), slog.Any("err", errs.Loggable(err)))
		return errs.Wrapf(err, "link record %d", recordID)
	}

	s.observer.ObserveLinkOne("linked")
	logging.Info(logCtx, "group relinked", slog.String("group", key.String()), slog.Int("links", written))
	return nil
}

// relinkGroup replaces every link of one group inside a single transaction.
func (s *Service) relinkGroup(ctx context.Context, key domain.GroupKey) (int, error) {
	pass, ok := s.policy.PassByName(key.Pass)
	if !ok {
		return 0, errs.Wrapf(domain.ErrInvalidPolicy, "unknown pass %q", key.Pass)
	}

	unlock := s.locks.lockGroup(key)
	defer unlock()

	written := 0
	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		rows, err := s.records.ListGroup(txCtx, key.LicenseNumber, s.groupSelectors(key, pass))
		if err != nil {
			return errs.MarkRetryable(errs.Wrap(err, "list group records"))
		}

		notifications, outcomes, notificationIDs, outcomeIDs := s.splitGroup(txCtx, rows)
		matches := domain.MatchGroup(notifications, outcomes, s.policy.Tolerance(pass))
		links := toRecordLinks(matches, formatTimestamp(s.now()))
		written = len(links)

		if err := s.links.ReplaceForRecords(txCtx, notificationIDs, outcomeIDs, links); err != nil {
			return errs.MarkRetryable(errs.Wrap(err, "replace group links"))
		}
		return nil
	})
	if err != nil {
		return 0, markDatastoreError(err)
	}
	return written, nil
}

// splitGroup separates a group's rows by side. Every row id is returned so
// that stale links of malformed rows are cleared too; only valid rows are
// matched.
func (s *Service) splitGroup(ctx context.Context, rows []ports.LicenseRecord) ([]domain.Record, []domain.Record, []uint64, []uint64) {
	var (
		notifications   []domain.Record
		outcomes        []domain.Record
		notificationIDs []uint64
		outcomeIDs      []uint64
	)
	for _, row := range rows {
		isNotification := row.Kind == string(domain.KindNotification)
		if isNotification {
			notificationIDs = append(notificationIDs, row.ID)
		} else {
			outcomeIDs = append(outcomeIDs, row.ID)
		}

		rec, err := matchableRecord(row)
		if err != nil {
			s.observer.ObserveExcluded("malformed", 1)
			logging.Warn(ctx, "record excluded from matching", slog.Uint64("record_id", row.ID), slog.Any("err", errs.Loggable(err)))
			continue
		}
		if isNotification {
			notifications = append(notifications, rec)
		} else {
			outcomes = append(outcomes, rec)
		}
	}
	return notifications, outcomes, notificationIDs, outcomeIDs
}
