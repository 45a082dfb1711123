// Package scheduler wraps robfig/cron/v3 to dispatch the five recurring
// jobs that drive the lifecycle engine forward between user actions: a
// live price poll, pre/post-session bookends, an orphan-order guard, and
// end-of-day reconciliation.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one schedulable unit of work.
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler manages background jobs on cron triggers. cron.Cron on its own
// starts a tick's run even while the previous run of the same entry is
// still going; the per-job mutex makes such a tick skip instead, so a job
// never overlaps itself.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Scheduler. The per-job run timeout is given to Register.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		log:   log.With().Str("component", "scheduler").Logger(),
		locks: make(map[string]*sync.Mutex),
	}
}

// Start begins dispatching registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop waits for any in-flight job to finish, then halts dispatch.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.log.Info().Msg("scheduler stopped")
}

// Register wires a Job to a cron schedule expression (standard 5-field
// cron, no seconds field, matching robfig/cron/v3's default parser).
func (s *Scheduler) Register(schedule string, job Job, timeout time.Duration) error {
	lock := s.lockFor(job.Name())

	_, err := s.cron.AddFunc(schedule, func() {
		if !lock.TryLock() {
			s.log.Warn().Str("job", job.Name()).Msg("previous run still in flight, skipping tick")
			return
		}
		defer lock.Unlock()

		ctx := context.Background()
		var cancel context.CancelFunc
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		if err := job.Run(ctx); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Dur("elapsed", time.Since(start)).Msg("job failed")
			return
		}
		s.log.Debug().Str("job", job.Name()).Dur("elapsed", time.Since(start)).Msg("job completed")
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("schedule", schedule).Str("job", job.Name()).Msg("job registered")
	return nil
}

// RunNow executes a job immediately, outside its schedule, used by
// optraderctl's manual-trigger subcommands.
func (s *Scheduler) RunNow(ctx context.Context, job Job) error {
	lock := s.lockFor(job.Name())
	if !lock.TryLock() {
		s.log.Warn().Str("job", job.Name()).Msg("job already running, refusing manual trigger")
		return nil
	}
	defer lock.Unlock()
	return job.Run(ctx)
}

func (s *Scheduler) lockFor(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[name]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[name] = l
	return l
}
