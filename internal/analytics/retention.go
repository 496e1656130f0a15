package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Retention periodically deletes analytics records older than the configured number of days.
type Retention struct {
	store  Store
	days   int
	cron   *cron.Cron
	logger *slog.Logger
	now    func() time.Time
}

func NewRetention(log *slog.Logger, store Store, days int) *Retention {
	if log == nil {
		log = slog.Default()
	}
	return &Retention{
		store:  store,
		days:   days,
		cron:   cron.New(cron.WithLocation(time.UTC)),
		logger: log.With(slog.String("service", "analytics_retention")),
		now:    time.Now,
	}
}

// Start schedules the purge with a standard five-field cron spec. Days <= 0 disables it.
func (r *Retention) Start(schedule string) error {
	if r.days <= 0 {
		r.logger.Info("analytics retention disabled")
		return nil
	}
	if _, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := r.Run(ctx); err != nil {
			r.logger.Error("analytics retention failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("schedule retention %q: %w", schedule, err)
	}
	r.cron.Start()
	return nil
}

// Run purges once and returns the number of removed records.
func (r *Retention) Run(ctx context.Context) (int64, error) {
	cutoff := r.now().UTC().AddDate(0, 0, -r.days)
	removed, err := r.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return removed, err
	}
	r.logger.Info("analytics retention done", slog.Int64("removed", removed), slog.Time("cutoff", cutoff))
	return removed, nil
}

func (r *Retention) Stop(ctx context.Context) error {
	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
