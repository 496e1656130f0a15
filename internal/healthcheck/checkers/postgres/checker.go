package pgchecker

import (
	"context"
	"log/slog"
	"time"

	"github.com/useembed/useembed/internal/healthcheck"
)

const (
	checkType           = "database.postgres"
	defaultCheckTimeout = 3 * time.Second
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker probes the Postgres pool.
type Checker struct {
	logger  *slog.Logger
	pool    Pinger
	timeout time.Duration
}

func NewChecker(log *slog.Logger, pool Pinger) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:  log.With(slog.String("checker", "healthcheck_postgres")),
		pool:    pool,
		timeout: defaultCheckTimeout,
	}
}

func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if c.pool == nil {
		return []healthcheck.CheckResult{{
			ID:      checkType,
			Type:    checkType,
			Status:  healthcheck.StatusUnknown,
			Summary: "Postgres is not configured.",
		}}
	}
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.pool.Ping(probeCtx)
	item := healthcheck.CheckResult{
		ID:        checkType,
		Type:      checkType,
		Status:    healthcheck.StatusOK,
		Summary:   "Postgres is reachable.",
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		c.logger.Warn("postgres healthcheck failed", slog.Any("error", err))
		item.Status = healthcheck.StatusError
		item.Summary = "Postgres is not reachable."
		item.Detail = err.Error()
	}
	return []healthcheck.CheckResult{item}
}
