package linking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"licenselink/internal/bootstrap/logging"
	domain "licenselink/internal/domain/linking"
	"licenselink/internal/errs"
)

type RebuildSummary struct {
	RunID      string `json:"run_id"`
	StartedAt  string `json:"started_at"`
	Groups     int    `json:"groups"`
	Records    int    `json:"records"`
	Excluded   int    `json:"excluded"`
	High       int    `json:"high"`
	Medium     int    `json:"medium"`
	Total      int    `json:"total"`
	DurationMS int64  `json:"duration_ms"`
}

type partition struct {
	key           domain.GroupKey
	tolerance     int
	notifications []domain.Record
	outcomes      []domain.Record
}

// RebuildAll recomputes every link from the stored records and swaps the
// whole link table in one transaction. Readers see the old set until commit.
func (s *Service) RebuildAll(ctx context.Context) (RebuildSummary, error) {
	if ctx == nil {
		return RebuildSummary{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return RebuildSummary{}, errs.Wrap(err, "check context")
	}

	runID := uuid.NewString()
	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "usecase.linking"),
		slog.String("op", "rebuild_all"),
		slog.String("run_id", runID),
	)
	unlock := s.locks.lockAll()
	defer unlock()

	started := s.now()
	summary := RebuildSummary{RunID: runID, StartedAt: formatTimestamp(started)}
	logging.Info(logCtx, "rebuild started", slog.Int("workers", s.workers))

	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		partitions, records, excluded, err := s.loadPartitions(txCtx, logCtx)
		if err != nil {
			return err
		}
		summary.Groups = len(partitions)
		summary.Records = records
		summary.Excluded = excluded

		matches, err := s.matchPartitions(txCtx, partitions)
		if err != nil {
			return err
		}
		summary.High, summary.Medium = domain.CountByConfidence(matches)
		summary.Total = len(matches)

		links := toRecordLinks(matches, summary.StartedAt)
		sortLinks(links)
		if err := s.links.ReplaceAll(txCtx, links); err != nil {
			return errs.MarkRetryable(errs.Wrap(err, "replace links"))
		}
		return nil
	})
	elapsed := s.now().Sub(started)
	summary.DurationMS = elapsed.Milliseconds()

	if err != nil {
		err = markDatastoreError(err)
		s.observer.ObserveRebuild(elapsed, err, 0, 0)
		logging.Error(logCtx, "rebuild failed, previous links kept", slog.Any("err", errs.Loggable(err)))
		return RebuildSummary{}, errs.Wrap(err, "rebuild links")
	}

	s.observer.ObserveRebuild(elapsed, nil, summary.High, summary.Medium)
	s.observer.ObserveExcluded("malformed", summary.Excluded)
	s.storeSummary(logCtx, summary)
	logging.Info(logCtx, "rebuild completed",
		slog.Int("groups", summary.Groups),
		slog.Int("records", summary.Records),
		slog.Int("excluded", summary.Excluded),
		slog.Int("high", summary.High),
		slog.Int("medium", summary.Medium),
		slog.Int64("duration_ms", summary.DurationMS),
	)
	return summary, nil
}

// loadPartitions scans each pass once and buckets records by group. Records
// that cannot be matched are logged and left out.
func (s *Service) loadPartitions(ctx context.Context, logCtx context.Context) ([]*partition, int, int, error) {
	byKey := make(map[domain.GroupKey]*partition)
	records := 0
	excluded := 0

	for _, pass := range s.policy.Passes {
		rows, err := s.records.ListRecords(ctx, passSelectors(pass))
		if err != nil {
			return nil, 0, 0, errs.MarkRetryable(errs.Wrapf(err, "list records for pass %s", pass.Name))
		}

		tolerance := s.policy.Tolerance(pass)
		for _, row := range rows {
			records++
			rec, err := matchableRecord(row)
			if err != nil {
				excluded++
				logging.Warn(logCtx, "record excluded from matching",
					slog.Uint64("record_id", row.ID),
					slog.Any("err", errs.Loggable(err)),
				)
				continue
			}
			key, ok := s.policy.GroupFor(rec)
			if !ok || key.Pass != pass.Name {
				continue
			}

			p, ok := byKey[key]
			if !ok {
				p = &partition{key: key, tolerance: tolerance}
				byKey[key] = p
			}
			if rec.Kind == domain.KindNotification {
				p.notifications = append(p.notifications, rec)
			} else {
				p.outcomes = append(p.outcomes, rec)
			}
		}
	}

	out := make([]*partition, 0, len(byKey))
	for _, p := range byKey {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].key.String() < out[j].key.String()
	})
	return out, records, excluded, nil
}

// matchPartitions runs the matcher over partitions on a bounded worker pool.
// Partitions share no state, so results are stitched back in input order.
func (s *Service) matchPartitions(ctx context.Context, partitions []*partition) ([]domain.Match, error) {
	results := make([][]domain.Match, len(partitions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, p := range partitions {
		if len(p.notifications) == 0 || len(p.outcomes) == 0 {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = domain.MatchGroup(p.notifications, p.outcomes, p.tolerance)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errs.Wrap(err, "match partitions")
	}

	var out []domain.Match
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (s *Service) storeSummary(ctx context.Context, summary RebuildSummary) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		logging.Warn(ctx, "encode rebuild summary failed", slog.Any("err", errs.Loggable(err)))
		return
	}
	if err := s.cache.Set(ctx, LastRebuildCacheKey, string(payload), 0); err != nil {
		logging.Warn(ctx, "cache rebuild summary failed", slog.Any("err", errs.Loggable(err)))
	}
}

// LastRebuild returns the cached summary of the last successful rebuild.
func (s *Service) LastRebuild(ctx context.Context) (RebuildSummary, bool, error) {
	if s.cache == nil {
		return RebuildSummary{}, false, nil
	}
	raw, found, err := s.cache.Get(ctx, LastRebuildCacheKey)
	if err != nil || !found {
		return RebuildSummary{}, false, err
	}
	var summary RebuildSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return RebuildSummary{}, false, errs.Wrap(err, "decode rebuild summary")
	}
	return summary, true, nil
}

// markDatastoreError tags a failed transaction as retryable unless the caller
// gave up on it.
func markDatastoreError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errs.MarkRetryable(err)
}
