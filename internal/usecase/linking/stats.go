package linking

import (
	"context"
	"errors"

	domain "licenselink/internal/domain/linking"
	"licenselink/internal/errs"
	"licenselink/internal/ports"
)

type PipelineStats struct {
	Notifications int
	Statuses      map[domain.Status]int
	Links         map[string]int64
	LastRebuild   *RebuildSummary
}

// PipelineStats counts notifications per derived status and links per
// confidence.
func (s *Service) PipelineStats(ctx context.Context) (PipelineStats, error) {
	if ctx == nil {
		return PipelineStats{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return PipelineStats{}, errs.Wrap(err, "check context")
	}

	stats := PipelineStats{Statuses: make(map[domain.Status]int, len(domain.AllStatuses))}
	for _, status := range domain.AllStatuses {
		stats.Statuses[status] = 0
	}

	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		rows, err := s.records.ListRecords(txCtx, []ports.RecordSelector{{Kind: string(domain.KindNotification)}})
		if err != nil {
			return errs.Wrap(err, "list notifications")
		}
		statuses, err := s.resolveRows(txCtx, rows)
		if err != nil {
			return err
		}
		stats.Notifications = len(statuses)
		for _, status := range statuses {
			stats.Statuses[status.Status]++
		}

		stats.Links, err = s.links.CountByConfidence(txCtx)
		if err != nil {
			return errs.Wrap(err, "count links")
		}
		return nil
	})
	if err != nil {
		return PipelineStats{}, err
	}

	last, found, err := s.LastRebuild(ctx)
	if err != nil {
		return PipelineStats{}, err
	}
	if found {
		stats.LastRebuild = &last
	}
	return stats, nil
}
