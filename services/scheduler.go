package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"autostats/models"
)

// Runner is anything that performs one collection.
type Runner interface {
	Run(ctx context.Context) (*models.RunResult, error)
}

// Scheduler triggers the collector on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	entryID cron.EntryID
	runner  Runner
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(spec string, runner Runner) (*Scheduler, error) {
	logger := cronLogger{logger: log.With().Str("component", "cron").Logger()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, runner: runner, ctx: ctx, cancel: cancel}

	id, err := c.AddFunc(spec, s.trigger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.entryID = id
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Time("next_run", s.Next()).Msg("Scheduler started")
}

// Stop waits for a running collection to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// Next is the time of the next scheduled run, zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) trigger() {
	log.Info().Msg("Scheduled collection triggered")
	result, err := s.runner.Run(s.ctx)
	if errors.Is(err, ErrRunInProgress) {
		log.Warn().Msg("Skipping scheduled run, another collection is in progress")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Scheduled collection failed")
		return
	}
	log.Info().Str("status", string(result.Status)).Time("next_run", s.Next()).Msg(result.Message)
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) fields(keysAndValues []any) map[string]any {
	fields := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(l.fields(keysAndValues)).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(l.fields(keysAndValues)).Msg("cron: " + msg)
}
