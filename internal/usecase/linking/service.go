package linking

import (
	"errors"
	"time"

	domain "licenselink/internal/domain/linking"
	"licenselink/internal/ports"
)

// LastRebuildCacheKey holds the JSON summary of the last successful rebuild.
const LastRebuildCacheKey = "links:last_rebuild"

// Observer receives linker measurements. *metrics.Metrics implements it.
type Observer interface {
	ObserveRebuild(elapsed time.Duration, err error, high, medium int)
	ObserveLinkOne(result string)
	ObserveExcluded(reason string, n int)
}

type noopObserver struct{}

func (noopObserver) ObserveRebuild(time.Duration, error, int, int) {}
func (noopObserver) ObserveLinkOne(string)                         {}
func (noopObserver) ObserveExcluded(string, int)                   {}

type Config struct {
	// Workers bounds the partitions matched in parallel during a rebuild.
	Workers int
	// Location decides which calendar day "today" is for status ages.
	Location *time.Location
}

type Service struct {
	records  ports.RecordRepository
	links    ports.LinkRepository
	uow      ports.UnitOfWork
	cache    ports.Cache
	observer Observer
	policy   domain.Policy
	resolver domain.StatusResolver
	workers  int
	location *time.Location
	now      func() time.Time
	locks    *groupLocks
}

// NewService wires the linker. cache and observer are optional.
func NewService(
	records ports.RecordRepository,
	links ports.LinkRepository,
	uow ports.UnitOfWork,
	cache ports.Cache,
	observer Observer,
	policy domain.Policy,
	cfg Config,
) (*Service, error) {
	if records == nil {
		return nil, errors.New("record repository is required")
	}
	if links == nil {
		return nil, errors.New("link repository is required")
	}
	if uow == nil {
		return nil, errors.New("unit of work is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if observer == nil {
		observer = noopObserver{}
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}

	return &Service{
		records:  records,
		links:    links,
		uow:      uow,
		cache:    cache,
		observer: observer,
		policy:   policy,
		resolver: domain.NewStatusResolver(policy),
		workers:  workers,
		location: location,
		now:      time.Now,
		locks:    newGroupLocks(),
	}, nil
}

func (s *Service) Policy() domain.Policy {
	return s.policy
}

// Today is the current calendar day in the configured location, as a UTC
// midnight value comparable with record dates.
func (s *Service) Today() time.Time {
	y, m, d := s.now().In(s.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
