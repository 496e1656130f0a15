package redischecker

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/useembed/useembed/internal/healthcheck"
)

const (
	checkType           = "cache.redis"
	defaultCheckTimeout = 2 * time.Second
)

// Checker probes the Redis client used for catalog caching and conversation locks.
type Checker struct {
	logger  *slog.Logger
	client  redis.UniversalClient
	timeout time.Duration
}

func NewChecker(log *slog.Logger, client redis.UniversalClient) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:  log.With(slog.String("checker", "healthcheck_redis")),
		client:  client,
		timeout: defaultCheckTimeout,
	}
}

func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if c.client == nil {
		return []healthcheck.CheckResult{}
	}
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.client.Ping(probeCtx).Err()
	item := healthcheck.CheckResult{
		ID:        checkType,
		Type:      checkType,
		Status:    healthcheck.StatusOK,
		Summary:   "Redis is reachable.",
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		c.logger.Warn("redis healthcheck failed", slog.Any("error", err))
		// Without Redis the node still serves; locks and caching degrade.
		item.Status = healthcheck.StatusWarn
		item.Summary = "Redis is not reachable."
		item.Detail = err.Error()
	}
	return []healthcheck.CheckResult{item}
}
