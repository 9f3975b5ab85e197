package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Job is a unit of scheduled work. The context is cancelled on Stop.
type Job func(ctx context.Context) error

// Scheduler управляет запланированными задачами
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	logger  zerolog.Logger
	mu      sync.Mutex
	running bool
}

// New создает новый планировщик. Cron specs are evaluated in UTC.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
		logger: log.With().Str("component", "scheduler").Logger(),
	}
}

// AddJob registers fn under a standard five-field cron spec or a
// descriptor such as "@every 5m". An empty spec disables the job.
func (s *Scheduler) AddJob(name, spec string, fn Job) error {
	if spec == "" {
		s.logger.Warn().Str("job", name).Msg("job has no schedule, skipped")
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := fn(s.ctx); err != nil {
			s.logger.Error().Err(err).Str("job", name).Msg("job failed")
			return
		}
		s.logger.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("job done")
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.logger.Info().Str("job", name).Str("spec", spec).Msg("job scheduled")
	return nil
}

// Start запускает планировщик
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop waits for running jobs and cancels their context.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
	}
	s.cancel()
	s.logger.Info().Msg("scheduler stopped")
}

// IsRunning проверяет, запущен ли планировщик
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && len(s.cron.Entries()) > 0
}
