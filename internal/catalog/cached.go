package catalog

import (
	"context"
	"log/slog"
	"time"
)

const DefaultCacheTTL = 5 * time.Minute

// CachedBuilder serves catalogs from a cache, rebuilding on miss or cache failure.
type CachedBuilder struct {
	source Source
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedBuilder(log *slog.Logger, source Source, cache Cache, ttl time.Duration) *CachedBuilder {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedBuilder{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: log.With(slog.String("service", "catalog")),
	}
}

func (b *CachedBuilder) Build(ctx context.Context, tenantID string) ([]Tool, error) {
	tools, ok, err := b.cache.Get(ctx, tenantID)
	if err != nil {
		b.logger.Warn("catalog cache read failed", slog.String("tenant_id", tenantID), slog.Any("error", err))
	}
	if ok {
		return tools, nil
	}
	tools, err = b.source.Build(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := b.cache.Set(ctx, tenantID, tools, b.ttl); err != nil {
		b.logger.Warn("catalog cache write failed", slog.String("tenant_id", tenantID), slog.Any("error", err))
	}
	return tools, nil
}

// Invalidate drops the tenant's cached catalog. Its signature matches registry.ChangeFunc.
func (b *CachedBuilder) Invalidate(ctx context.Context, tenantID string) {
	if err := b.cache.Delete(ctx, tenantID); err != nil {
		b.logger.Warn("catalog cache invalidate failed", slog.String("tenant_id", tenantID), slog.Any("error", err))
	}
}
