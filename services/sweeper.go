package services

import (
	"context"
	"time"

	"geoguess/logger"
	"geoguess/store"

	"github.com/go-co-op/gocron/v2"
)

// Sweeper finishes matches that were abandoned before anyone asked for the
// final standings.
type Sweeper struct {
	store    store.Store
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time

	sched gocron.Scheduler
}

func NewSweeper(st store.Store, maxAge, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    st,
		maxAge:   maxAge,
		interval: interval,
		now:      time.Now,
	}
}

// Sweep finishes every unfinished match older than the max age.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.FinishStale(ctx, s.now().Add(-s.maxAge))
	if err != nil {
		return 0, storeError("failed to finish stale matches", err)
	}
	if n > 0 {
		logger.Info("[Sweeper] finished %d stale matches", n)
	}
	return n, nil
}

// Start runs Sweep every interval until Stop.
func (s *Sweeper) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := s.Sweep(ctx); err != nil {
				logger.Error("[Sweeper] %v", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		sched.Shutdown()
		return err
	}

	sched.Start()
	s.sched = sched
	logger.Info("[Sweeper] started (max age %s, every %s)", s.maxAge, s.interval)
	return nil
}

func (s *Sweeper) Stop() error {
	if s.sched == nil {
		return nil
	}
	return s.sched.Shutdown()
}
