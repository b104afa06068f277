package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"licenselink/internal/bootstrap/logging"
	domain "licenselink/internal/domain/linking"
	"licenselink/internal/errs"
	"licenselink/internal/ports"
)

// Linker relinks the group of one stored record.
type Linker interface {
	LinkOne(ctx context.Context, recordID uint64) error
}

type Service struct {
	records   ports.RecordRepository
	linker    Linker
	publisher ports.RecordEventPublisher
	now       func() time.Time
}

// NewService wires intake. publisher may be nil when no bus is configured.
func NewService(records ports.RecordRepository, linker Linker, publisher ports.RecordEventPublisher) *Service {
	return &Service{
		records:   records,
		linker:    linker,
		publisher: publisher,
		now:       time.Now,
	}
}

type LoadOptions struct {
	// Publish announces new records on the bus instead of linking inline.
	Publish bool
}

type Failure struct {
	Index    int
	RecordID uint64
	Err      error
}

type LoadResult struct {
	Read       int
	Inserted   int
	Duplicates int
	Invalid    int
	Linked     int
	Published  int
	Failures   []Failure
}

func (s *Service) LoadFile(ctx context.Context, path string, opts LoadOptions) (LoadResult, error) {
	if ctx == nil {
		return LoadResult{}, errors.New("context is required")
	}

	f, err := os.Open(path)
	if err != nil {
		return LoadResult{}, errs.Wrapf(err, "open fixture %q", path)
	}
	defer f.Close()

	records, err := ParseFixture(f)
	if err != nil {
		return LoadResult{}, errs.Wrapf(err, "parse fixture %q", path)
	}
	return s.Load(ctx, records, opts)
}

// Load stores records, skipping ones already present, and links each new
// one. A record that fails to store or link is reported and the rest of the
// batch continues.
func (s *Service) Load(ctx context.Context, records []FixtureRecord, opts LoadOptions) (LoadResult, error) {
	if ctx == nil {
		return LoadResult{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return LoadResult{}, errs.Wrap(err, "check context")
	}
	if s.records == nil {
		return LoadResult{}, errors.New("record repository is required")
	}
	if opts.Publish && s.publisher == nil {
		return LoadResult{}, errors.New("publishing requires a configured message bus")
	}
	if !opts.Publish && s.linker == nil {
		return LoadResult{}, errors.New("linker is required")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "usecase.intake"))
	result := LoadResult{Read: len(records)}
	createdAt := s.now().UTC().Format(time.RFC3339)

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, errs.Wrap(err, "check context")
		}

		rec, err := normalizeFixture(rec)
		if err != nil {
			result.Invalid++
			logging.Warn(logCtx, "fixture record rejected", slog.Int("index", i), slog.Any("err", errs.Loggable(err)))
			continue
		}

		id, created, err := s.records.InsertRecord(ctx, ports.LicenseRecord{
			Kind:            rec.Kind,
			LicenseNumber:   rec.LicenseNumber,
			ApplicationType: rec.ApplicationType,
			EventDate:       rec.EventDate,
			BusinessName:    rec.BusinessName,
			LicenseType:     rec.LicenseType,
			CreatedAt:       createdAt,
		})
		if err != nil {
			result.Failures = append(result.Failures, Failure{Index: i, Err: errs.MarkRetryable(errs.Wrap(err, "insert record"))})
			logging.Error(logCtx, "insert record failed", slog.Int("index", i), slog.Any("err", errs.Loggable(err)))
			continue
		}
		if !created {
			result.Duplicates++
			continue
		}
		result.Inserted++

		recordCtx := logging.WithAttrs(logCtx, slog.Uint64("record_id", id))
		if opts.Publish {
			if err := s.publisher.PublishRecordInserted(recordCtx, id); err != nil {
				result.Failures = append(result.Failures, Failure{Index: i, RecordID: id, Err: err})
				logging.Error(recordCtx, "publish record failed", slog.Any("err", errs.Loggable(err)))
				continue
			}
			result.Published++
			continue
		}

		if err := s.linker.LinkOne(recordCtx, id); err != nil {
			result.Failures = append(result.Failures, Failure{Index: i, RecordID: id, Err: err})
			logging.Error(recordCtx, "link record failed, left for the next rebuild", slog.Any("err", errs.Loggable(err)))
			continue
		}
		result.Linked++
	}

	logging.Info(logCtx, "fixture loaded",
		slog.Int("read", result.Read),
		slog.Int("inserted", result.Inserted),
		slog.Int("duplicates", result.Duplicates),
		slog.Int("invalid", result.Invalid),
		slog.Int("linked", result.Linked),
		slog.Int("published", result.Published),
		slog.Int("failed", len(result.Failures)),
	)
	return result, nil
}

// normalizeFixture rejects records the store could not key and lower-cases
// the kind.
func normalizeFixture(rec FixtureRecord) (FixtureRecord, error) {
	kind, err := domain.ParseKind(rec.Kind)
	if err != nil {
		return FixtureRecord{}, err
	}
	rec.Kind = string(kind)
	if rec.EventDate == "" {
		return FixtureRecord{}, fmt.Errorf("%w: event_date is required", domain.ErrMalformedRecord)
	}
	if _, err := domain.ParseDate(rec.EventDate); err != nil {
		return FixtureRecord{}, fmt.Errorf("%w: event_date %q: %v", domain.ErrMalformedRecord, rec.EventDate, err)
	}
	return rec, nil
}
