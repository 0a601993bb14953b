package queue

import (
	"context"
	"time"

	"holdem-service/pkg/logger"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// Run starts the workers, the delayed-job promoter and the monitor, and
// blocks until ctx is done.
func (q *Queue) Run(ctx context.Context, h Handler) error {
	logger.Log.Info("queue started",
		zap.Int("workers", q.cfg.Workers),
		zap.Duration("pollInterval", q.cfg.PollInterval),
	)

	var wg conc.WaitGroup
	for i := 0; i < q.cfg.Workers; i++ {
		wg.Go(func() {
			q.loop(ctx, "worker", q.cfg.PollInterval, func(ctx context.Context) error {
				_, err := q.ProcessReady(ctx, h)
				return err
			})
		})
	}
	wg.Go(func() {
		q.loop(ctx, "promoter", q.cfg.PollInterval, func(ctx context.Context) error {
			_, err := q.Promote(ctx)
			return err
		})
	})
	wg.Go(func() {
		q.loop(ctx, "monitor", q.cfg.MonitorInterval, q.report)
	})
	wg.Wait()

	logger.Log.Info("queue stopped")
	return nil
}

func (q *Queue) loop(ctx context.Context, name string, interval time.Duration, tick func(context.Context) error) {
	ticker := q.clock.NewTicker(interval, name)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tick(ctx); err != nil && ctx.Err() == nil {
				logger.Log.Warn("queue loop error", zap.String("loop", name), zap.Error(err))
			}
		}
	}
}

func (q *Queue) report(ctx context.Context) error {
	stats, err := q.Stats(ctx)
	if err != nil {
		return err
	}
	logger.Log.Info("queue stats",
		zap.Int64("delayed", stats.Delayed),
		zap.Int64("ready", stats.Ready),
		zap.Int64("dead", stats.Dead),
	)
	return nil
}
