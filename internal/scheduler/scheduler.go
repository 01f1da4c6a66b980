package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Job is a periodic task. Errors are logged, never fatal.
type Job func(ctx context.Context) error

// Scheduler управляет периодическими задачами бота
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New создает новый планировщик в UTC
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add регистрирует задачу по cron-выражению (поддерживаются @every и дескрипторы)
func (s *Scheduler) Add(spec, name string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(s.ctx); err != nil {
			log.Error().Err(err).Str("job", name).Msg("scheduled job failed")
			return
		}
		log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("scheduled job done")
	})
	if err != nil {
		return err
	}
	log.Info().Str("job", name).Str("spec", spec).Msg("job scheduled")
	return nil
}

// Start запускает планировщик
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop останавливает планировщик и ждёт завершения текущих задач
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	log.Info().Msg("scheduler stopped")
}

// HasJobs проверяет, есть ли зарегистрированные задачи
func (s *Scheduler) HasJobs() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
