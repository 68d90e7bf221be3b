package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	priceusecase "smartshop-backend/internal/price/usecase"
	"smartshop-backend/pkg/logger"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// PriceRefresher runs one aggregation round over all active entries.
type PriceRefresher interface {
	RefreshAll(ctx context.Context) (priceusecase.RefreshSummary, error)
}

// WatchRenewer re-issues Gmail watches.
type WatchRenewer interface {
	RenewWatches(ctx context.Context) (int, error)
}

// Config holds the cron specs. An empty spec disables the job.
type Config struct {
	PriceRefreshSchedule string
	WatchRenewSchedule   string
	JobTimeout           time.Duration
}

// Scheduler runs the periodic background jobs. A job whose previous run is
// still active skips the tick.
type Scheduler struct {
	cron       *cron.Cron
	jobTimeout time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewScheduler(cfg Config, prices PriceRefresher, watches WatchRenewer) (*Scheduler, error) {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:       cron.New(cron.WithLogger(cronLogger{log: logger.Component("scheduler")})),
		jobTimeout: cfg.JobTimeout,
		ctx:        ctx,
		cancel:     cancel,
	}

	if prices != nil && cfg.PriceRefreshSchedule != "" {
		err := s.AddJob("price-refresh", cfg.PriceRefreshSchedule, func(ctx context.Context) error {
			summary, err := prices.RefreshAll(ctx)
			if err != nil {
				return err
			}
			lg := logger.Component("scheduler")
			lg.Info().
				Int("products", summary.Products).
				Int("updated", summary.Updated).
				Int("failed", summary.Failed).
				Int("notified", summary.Notified).
				Msg("price refresh finished")
			return nil
		})
		if err != nil {
			cancel()
			return nil, err
		}
	}
	if watches != nil && cfg.WatchRenewSchedule != "" {
		err := s.AddJob("watch-renew", cfg.WatchRenewSchedule, func(ctx context.Context) error {
			_, err := watches.RenewWatches(ctx)
			return err
		})
		if err != nil {
			cancel()
			return nil, err
		}
	}
	return s, nil
}

// AddJob registers fn under spec, e.g. "@every 6h" or "0 3 * * *".
func (s *Scheduler) AddJob(name, spec string, fn func(ctx context.Context) error) error {
	j := &job{name: name, fn: fn, timeout: s.jobTimeout, parent: s.ctx}
	if _, err := s.cron.AddJob(spec, j); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	lg := logger.Component("scheduler")
	lg.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(10 * time.Second):
		lg := logger.Component("scheduler")
		lg.Warn().Msg("stop timed out waiting for running jobs")
	}
	lg := logger.Component("scheduler")
	lg.Info().Msg("scheduler stopped")
}

// job is a cron.Job that never overlaps itself.
type job struct {
	name    string
	fn      func(ctx context.Context) error
	timeout time.Duration
	parent  context.Context
	running atomic.Bool
}

func (j *job) Run() {
	log := logger.Component("scheduler").With().Str("job", j.name).Logger()
	if !j.running.CompareAndSwap(false, true) {
		log.Info().Msg("previous run still active, tick skipped")
		return
	}
	defer j.running.Store(false)

	ctx, cancel := context.WithTimeout(j.parent, j.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("job panicked")
		}
	}()
	if err := j.fn(ctx); err != nil {
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("job failed")
		return
	}
	log.Debug().Dur("took", time.Since(start)).Msg("job done")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
