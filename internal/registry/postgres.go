package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/useembed/useembed/internal/db"
	"github.com/useembed/useembed/internal/secrets"
)

const apiColumns = `id, tenant_id, name, description, base_url, auth_kind, auth_config, headers, endpoints, is_active, created_at, updated_at`

// PostgresStore persists registered APIs with endpoints embedded as JSONB.
// Auth config values are sealed with the configured secrets box.
type PostgresStore struct {
	db  db.DBTX
	box *secrets.Box
}

func NewPostgresStore(conn db.DBTX, box *secrets.Box) *PostgresStore {
	if box == nil {
		box = &secrets.Box{}
	}
	return &PostgresStore{db: conn, box: box}
}

func (s *PostgresStore) ListActive(ctx context.Context, tenantID string) ([]API, error) {
	return s.query(ctx, `SELECT `+apiColumns+` FROM registered_apis WHERE tenant_id = $1 AND is_active ORDER BY created_at, name`, tenantID)
}

func (s *PostgresStore) List(ctx context.Context, tenantID string) ([]API, error) {
	return s.query(ctx, `SELECT `+apiColumns+` FROM registered_apis WHERE tenant_id = $1 ORDER BY created_at, name`, tenantID)
}

func (s *PostgresStore) Get(ctx context.Context, tenantID, id string) (API, error) {
	row := s.db.QueryRow(ctx, `SELECT `+apiColumns+` FROM registered_apis WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return s.scanOne(row)
}

func (s *PostgresStore) FindByName(ctx context.Context, tenantID, name string) (API, error) {
	row := s.db.QueryRow(ctx, `SELECT `+apiColumns+` FROM registered_apis WHERE tenant_id = $1 AND lower(name) = lower($2) AND is_active LIMIT 1`, tenantID, name)
	return s.scanOne(row)
}

func (s *PostgresStore) Create(ctx context.Context, api API) (API, error) {
	authConfig, headers, endpoints, err := s.encode(api)
	if err != nil {
		return API{}, err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO registered_apis (`+apiColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		api.ID, api.TenantID, api.Name, api.Description, api.BaseURL, string(api.Auth.Kind),
		authConfig, headers, endpoints, api.IsActive, api.CreatedAt, api.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return API{}, ErrNameConflict
		}
		return API{}, fmt.Errorf("insert api: %w", err)
	}
	return api, nil
}

func (s *PostgresStore) Update(ctx context.Context, api API) (API, error) {
	authConfig, headers, endpoints, err := s.encode(api)
	if err != nil {
		return API{}, err
	}
	tag, err := s.db.Exec(ctx, `UPDATE registered_apis
		SET name = $3, description = $4, base_url = $5, auth_kind = $6, auth_config = $7,
		    headers = $8, endpoints = $9, is_active = $10, updated_at = $11
		WHERE tenant_id = $1 AND id = $2`,
		api.TenantID, api.ID, api.Name, api.Description, api.BaseURL, string(api.Auth.Kind),
		authConfig, headers, endpoints, api.IsActive, api.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return API{}, ErrNameConflict
		}
		return API{}, fmt.Errorf("update api: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return API{}, ErrNotFound
	}
	return api, nil
}

func (s *PostgresStore) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM registered_apis WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete api: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]API, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list apis: %w", err)
	}
	defer rows.Close()
	out := []API{}
	for rows.Next() {
		api, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, api)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list apis: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) scanOne(row pgx.Row) (API, error) {
	api, err := s.scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return API{}, ErrNotFound
	}
	return api, err
}

func (s *PostgresStore) scan(row pgx.Row) (API, error) {
	var (
		api                               API
		authKind                          string
		authConfig, headers, endpointsRaw []byte
	)
	if err := row.Scan(&api.ID, &api.TenantID, &api.Name, &api.Description, &api.BaseURL, &authKind,
		&authConfig, &headers, &endpointsRaw, &api.IsActive, &api.CreatedAt, &api.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return API{}, err
		}
		return API{}, fmt.Errorf("scan api: %w", err)
	}
	api.Auth.Kind = AuthKind(authKind)
	if len(authConfig) > 0 {
		var sealed map[string]any
		if err := json.Unmarshal(authConfig, &sealed); err != nil {
			return API{}, fmt.Errorf("decode auth config: %w", err)
		}
		opened, err := s.box.OpenMap(sealed)
		if err != nil {
			return API{}, fmt.Errorf("open auth config: %w", err)
		}
		api.Auth.Config = opened
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &api.Headers); err != nil {
			return API{}, fmt.Errorf("decode headers: %w", err)
		}
	}
	if len(endpointsRaw) > 0 {
		if err := json.Unmarshal(endpointsRaw, &api.Endpoints); err != nil {
			return API{}, fmt.Errorf("decode endpoints: %w", err)
		}
	}
	return api, nil
}

func (s *PostgresStore) encode(api API) (authConfig, headers, endpoints []byte, err error) {
	sealed, err := s.box.SealMap(api.Auth.Config)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("seal auth config: %w", err)
	}
	if sealed == nil {
		sealed = map[string]any{}
	}
	if authConfig, err = json.Marshal(sealed); err != nil {
		return nil, nil, nil, err
	}
	h := api.Headers
	if h == nil {
		h = map[string]string{}
	}
	if headers, err = json.Marshal(h); err != nil {
		return nil, nil, nil, err
	}
	eps := api.Endpoints
	if eps == nil {
		eps = []Endpoint{}
	}
	if endpoints, err = json.Marshal(eps); err != nil {
		return nil, nil, nil, err
	}
	return authConfig, headers, endpoints, nil
}
