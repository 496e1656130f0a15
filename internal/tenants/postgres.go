package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/useembed/useembed/internal/db"
)

const tenantColumns = `id, name, slug, api_key, owner_id, settings, is_active, created_at, updated_at`

type PostgresStore struct {
	db db.DBTX
}

func NewPostgresStore(conn db.DBTX) *PostgresStore {
	return &PostgresStore{db: conn}
}

func (s *PostgresStore) Create(ctx context.Context, t Tenant) error {
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.Name, t.Slug, t.APIKey, t.OwnerID, settings, t.IsActive, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrSlugConflict
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Tenant, error) {
	return scanTenant(s.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
}

func (s *PostgresStore) GetByAPIKey(ctx context.Context, apiKey string) (Tenant, error) {
	return scanTenant(s.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE api_key = $1`, apiKey))
}

func (s *PostgresStore) Update(ctx context.Context, t Tenant) error {
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	tag, err := s.db.Exec(ctx, `UPDATE tenants
		SET name = $2, api_key = $3, owner_id = $4, settings = $5, is_active = $6, updated_at = $7
		WHERE id = $1`,
		t.ID, t.Name, t.APIKey, t.OwnerID, settings, t.IsActive, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTenant(row pgx.Row) (Tenant, error) {
	var (
		t        Tenant
		settings []byte
	)
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.APIKey, &t.OwnerID, &settings, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, ErrNotFound
	}
	if err != nil {
		return Tenant{}, fmt.Errorf("scan tenant: %w", err)
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &t.Settings); err != nil {
			return Tenant{}, fmt.Errorf("decode settings: %w", err)
		}
	}
	return t, nil
}
