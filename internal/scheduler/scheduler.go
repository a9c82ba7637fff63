// Package scheduler triggers periodic feed refreshes from a cron expression.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-feeds/internal/feeds"
)

// Refresher queues a fetch for every feed-enabled journal.
type Refresher interface {
	RefreshFeeds(ctx context.Context, reason string) (int, error)
}

// Scheduler runs Refresher on a standard 5-field cron schedule.
type Scheduler struct {
	spec      string
	schedule  cron.Schedule
	refresher Refresher
	logger    *zap.Logger
}

// New validates spec and returns a Scheduler.
func New(spec string, refresher Refresher, logger *zap.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse refresh cron %q: %w", spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		spec:      spec,
		schedule:  schedule,
		refresher: refresher,
		logger:    logger.Named("scheduler"),
	}, nil
}

// Run blocks until ctx is done, refreshing feeds on every tick. Overlapping
// ticks are skipped while a refresh is still running.
func (s *Scheduler) Run(ctx context.Context) {
	cl := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.Tick(ctx) }))
	c.Start()
	s.logger.Info("scheduler started", zap.String("cron", s.spec), zap.Time("next", s.schedule.Next(time.Now())))

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Tick performs one scheduled refresh.
func (s *Scheduler) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	queued, err := s.refresher.RefreshFeeds(ctx, feeds.ReasonScheduled)
	if err != nil {
		s.logger.Error("scheduled refresh failed", zap.Int("queued", queued), zap.Error(err))
		return
	}
	s.logger.Info("scheduled refresh queued", zap.Int("queued", queued))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
