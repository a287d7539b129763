package apikey

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/retailops/crewdeck/pkg/observability"
)

// KeyDeactivator is the persistence hook the sweeper needs.
type KeyDeactivator interface {
	DeactivateExpiredKeys(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically deactivates expired API keys. Expired keys are
// already rejected at resolution time; the sweep keeps the stored state
// honest so listings and metrics do not count dead keys as active.
type Sweeper struct {
	repo     KeyDeactivator
	log      *observability.Logger
	schedule string
	cron     *cron.Cron
}

// NewSweeper creates a sweeper. schedule is a cron expression; when empty
// the sweep runs hourly.
func NewSweeper(repo KeyDeactivator, log *observability.Logger, schedule string) *Sweeper {
	if schedule == "" {
		schedule = "@hourly"
	}
	return &Sweeper{
		repo:     repo,
		log:      log,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start begins the periodic sweep.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.sweep)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	defer observability.RecoverPanic(s.log, "api key sweep")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := s.repo.DeactivateExpiredKeys(ctx, time.Now())
	if err != nil {
		s.log.WithError(err).Error("expired api key sweep failed")
		return
	}
	if count > 0 {
		s.log.WithField("count", count).Info("deactivated expired api keys")
	}
}
