// Package lifecycle implements the create, update and delete flows for pots
// and everything hanging off them. Deletes cascade in a fixed order inside
// one transaction; blob cleanup runs after commit on the background runner.
package lifecycle

import (
	"context"
	"database/sql"
	"time"

	"github.com/platinummonkey/potkeeper/pkg/access"
	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/async"
	"github.com/platinummonkey/potkeeper/pkg/media"
	"github.com/platinummonkey/potkeeper/pkg/observability"
	"github.com/platinummonkey/potkeeper/pkg/storage"
	"github.com/platinummonkey/potkeeper/pkg/storage/postgres"
)

const dateLayout = "2006-01-02"

// Service coordinates repositories, the authorization gate and blob cleanup.
type Service struct {
	db      *sql.DB
	gate    *access.Gate
	blobs   storage.BlobStore
	cleaner *media.Cleaner
	runner  *async.Runner
	logger  *observability.Logger
	now     func() time.Time
}

func NewService(db *sql.DB, gate *access.Gate, blobs storage.BlobStore, cleaner *media.Cleaner, runner *async.Runner, logger *observability.Logger) *Service {
	return &Service{
		db:      db,
		gate:    gate,
		blobs:   blobs,
		cleaner: cleaner,
		runner:  runner,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the clock used for reminders, stats and file names.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) pots() *postgres.PotRepository { return postgres.NewPotRepository(s.db) }

func (s *Service) careRecords() *postgres.CareRecordRepository {
	return postgres.NewCareRecordRepository(s.db)
}

func (s *Service) timelines() *postgres.TimelineRepository {
	return postgres.NewTimelineRepository(s.db)
}

func (s *Service) schedules() *postgres.ScheduleRepository {
	return postgres.NewScheduleRepository(s.db)
}

// validDate accepts an empty value or a YYYY-MM-DD date.
func validDate(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, value); err != nil {
		return apperr.Validationf("%s must be a date in YYYY-MM-DD format", field)
	}
	return nil
}

// cleanupLater removes the blobs behind urls once the request is done.
// It returns the number of blobs scheduled.
func (s *Service) cleanupLater(ctx context.Context, task string, urls []string) int {
	keys := s.cleaner.Deletable(urls)
	if len(keys) == 0 {
		return 0
	}
	err := s.runner.Go(ctx, task, func(ctx context.Context) error {
		s.cleaner.DeleteKeys(ctx, keys)
		return nil
	})
	if err != nil {
		observability.FromContextOr(ctx, s.logger).WithError(err).
			WithField("task", task).Warn("blob cleanup not scheduled")
		return 0
	}
	return len(keys)
}

// cleanupUnreferenced schedules deletion of the candidates that no other
// care record or timeline of the pot still uses.
func (s *Service) cleanupUnreferenced(ctx context.Context, task, potID string, candidates []string) int {
	if len(candidates) == 0 {
		return 0
	}
	referenced, err := s.pots().PotMedia(ctx, potID)
	if err != nil {
		observability.FromContextOr(ctx, s.logger).WithError(err).
			WithField("pot_id", potID).Warn("could not resolve image references, skipping cleanup")
		return 0
	}
	return s.cleanupLater(ctx, task, media.Unreferenced(candidates, referenced))
}

func daysBetween(from, to time.Time) int {
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	to = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// daysSince returns whole days from a YYYY-MM-DD date to now, or nil when
// the date is empty or malformed.
func daysSince(date string, now time.Time) *int {
	if date == "" {
		return nil
	}
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil
	}
	n := daysBetween(d, now)
	return &n
}
