package registry_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/useembed/useembed/internal/registry"
	"github.com/useembed/useembed/internal/secrets"
)

func setupRegistryIntegrationTest(t *testing.T) (*registry.Service, *pgxpool.Pool, string) {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skip integration test: TEST_POSTGRES_DSN is not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("skip integration test: cannot connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skip integration test: database ping failed: %v", err)
	}
	t.Cleanup(pool.Close)

	tenantID := uuid.NewString()
	if _, err := pool.Exec(ctx, `INSERT INTO tenants (id, name, slug, api_key) VALUES ($1, $2, $3, $4)`,
		tenantID, "it", "it-"+tenantID, "ue_it_"+tenantID); err != nil {
		t.Fatalf("insert tenant: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM tenants WHERE id = $1`, tenantID)
	})

	box, err := secrets.NewBox("integration-key")
	if err != nil {
		t.Fatalf("box: %v", err)
	}
	return registry.NewService(nil, registry.NewPostgresStore(pool, box)), pool, tenantID
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	svc, pool, tenantID := setupRegistryIntegrationTest(t)
	ctx := context.Background()

	api, err := svc.Create(ctx, tenantID, registry.APIInput{
		Name:    "Orders",
		BaseURL: "https://x.test",
		Auth:    registry.Auth{Kind: registry.AuthBearer, Config: map[string]any{"token": "sk-secret"}},
		Endpoints: []registry.EndpointInput{{
			Name:       "get_status",
			Method:     "GET",
			Path:       "/orders/{id}",
			Parameters: []registry.Parameter{{Name: "id", In: registry.InPath, Type: "string", Required: true}},
		}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var raw string
	if err := pool.QueryRow(ctx, `SELECT auth_config->>'token' FROM registered_apis WHERE id = $1`, api.ID).Scan(&raw); err != nil {
		t.Fatalf("read raw auth config: %v", err)
	}
	if raw == "sk-secret" {
		t.Fatalf("auth config stored in plain text")
	}

	found, err := svc.Store().FindByName(ctx, tenantID, "orders")
	if err != nil {
		t.Fatalf("find by name: %v", err)
	}
	if found.Auth.Config["token"] != "sk-secret" {
		t.Fatalf("token not opened: %v", found.Auth.Config)
	}
	if len(found.Endpoints) != 1 || found.Endpoints[0].ID != api.Endpoints[0].ID {
		t.Fatalf("endpoints not preserved: %+v", found.Endpoints)
	}

	if _, err := svc.Create(ctx, tenantID, registry.APIInput{Name: "ORDERS", BaseURL: "https://y.test"}); !errors.Is(err, registry.ErrNameConflict) {
		t.Fatalf("expected name conflict, got %v", err)
	}

	if _, err := svc.SetActive(ctx, tenantID, api.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	active, err := svc.Store().ListActive(ctx, tenantID)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("inactive api listed: %d", len(active))
	}
	if err := svc.Delete(ctx, tenantID, api.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, tenantID, api.ID); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
