package daemon

import (
	"context"
	"log/slog"
	"time"

	"voxmeter/internal/repository"
)

// PeriodRolloverTask advances subscriptions whose billing period has elapsed:
// minute counters reset and the period window moves forward one month. Credit
// balances carry over untouched.
func PeriodRolloverTask(repo repository.Repository, interval time.Duration, logger *slog.Logger) DaemonFunc {
	return func(ctx context.Context, name string) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logger.Info("Period rollover task started", "task", name, "interval", interval)

		for {
			select {
			case <-ctx.Done():
				logger.Info("Period rollover task shutting down", "task", name)
				return nil
			case <-ticker.C:
				rolled, err := repo.ResetElapsedPeriods(ctx, time.Now().UTC())
				if err != nil {
					logger.Error("Failed to roll over billing periods", "task", name, "error", err)
					continue
				}
				if rolled > 0 {
					logger.Info("Rolled over billing periods", "task", name, "count", rolled)
				}
			}
		}
	}
}
