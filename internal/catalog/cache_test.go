package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/useembed/useembed/internal/registry"
)

type countingSource struct {
	calls int
	tools []Tool
}

func (s *countingSource) Build(context.Context, string) ([]Tool, error) {
	s.calls++
	return s.tools, nil
}

func TestMemoryCacheExpires(t *testing.T) {
	now := time.Unix(1000, 0)
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	if err := cache.Set(ctx, "t1", []Tool{{Name: "a"}}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	tools, ok, _ := cache.Get(ctx, "t1")
	if !ok || len(tools) != 1 {
		t.Fatalf("expected hit, got ok=%v tools=%v", ok, tools)
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := cache.Get(ctx, "t1"); ok {
		t.Fatalf("expected expiry")
	}
}

func TestRedisCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewRedisCache(client)
	ctx := context.Background()

	tools := BuildTools(shopAPIs())
	if err := cache.Set(ctx, "t1", tools, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("catalog:t1") {
		t.Fatalf("expected catalog:t1 key")
	}
	got, ok, err := cache.Get(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[1].Name != "My_Shop_get_order" || got[1].Parameters.Required[0] != "id" {
		t.Fatalf("unexpected tools %+v", got)
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, _ := cache.Get(ctx, "t1"); ok {
		t.Fatalf("expected expiry")
	}
}

func TestCachedBuilderInvalidate(t *testing.T) {
	source := &countingSource{tools: []Tool{{Name: "a"}}}
	builder := NewCachedBuilder(nil, source, NewMemoryCache(), time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := builder.Build(ctx, "t1"); err != nil {
			t.Fatalf("build: %v", err)
		}
	}
	if source.calls != 1 {
		t.Fatalf("expected one build, got %d", source.calls)
	}
	builder.Invalidate(ctx, "t1")
	if _, err := builder.Build(ctx, "t1"); err != nil {
		t.Fatalf("build: %v", err)
	}
	if source.calls != 2 {
		t.Fatalf("expected rebuild after invalidate, got %d", source.calls)
	}
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]Tool, bool, error) {
	return nil, false, errors.New("cache down")
}
func (brokenCache) Set(context.Context, string, []Tool, time.Duration) error {
	return errors.New("cache down")
}
func (brokenCache) Delete(context.Context, string) error { return errors.New("cache down") }

func TestCachedBuilderFallsBackOnCacheFailure(t *testing.T) {
	source := &countingSource{tools: []Tool{{Name: "a"}}}
	builder := NewCachedBuilder(nil, source, brokenCache{}, time.Minute)
	tools, err := builder.Build(context.Background(), "t1")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("unexpected tools %v", tools)
	}
}

func TestRegistryChangesInvalidateCatalog(t *testing.T) {
	svc := registry.NewService(nil, registry.NewMemoryStore())
	builder := NewCachedBuilder(nil, NewBuilder(svc.Store()), NewMemoryCache(), time.Minute)
	svc.OnChange(builder.Invalidate)
	ctx := context.Background()

	tools, err := builder.Build(ctx, "t1")
	if err != nil || len(tools) != 0 {
		t.Fatalf("expected empty catalog, got %v err=%v", tools, err)
	}
	_, err = svc.Create(ctx, "t1", registry.APIInput{
		Name:      "Orders",
		BaseURL:   "https://x.test",
		Endpoints: []registry.EndpointInput{{Name: "list", Method: "GET", Path: "/orders"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tools, err = builder.Build(ctx, "t1")
	if err != nil || len(tools) != 1 || tools[0].Name != "Orders_list" {
		t.Fatalf("expected fresh catalog, got %v err=%v", tools, err)
	}
}
