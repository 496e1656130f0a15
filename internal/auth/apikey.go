package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/useembed/useembed/internal/tenants"
)

const (
	APIKeyHeader = "X-API-Key"
	APIKeyQuery  = "apiKey"

	tenantContextKey = "tenant"
)

// TenantResolver looks a tenant up by its widget API key.
type TenantResolver interface {
	GetByAPIKey(ctx context.Context, apiKey string) (tenants.Tenant, error)
}

// APIKeyMiddleware authenticates widget traffic and stores the tenant on the context.
func APIKeyMiddleware(log *slog.Logger, resolver TenantResolver) echo.MiddlewareFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := APIKeyFromRequest(c.Request())
			if key == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "api key required")
			}
			tenant, err := resolver.GetByAPIKey(c.Request().Context(), key)
			if err != nil {
				if errors.Is(err, tenants.ErrInvalidAPIKey) {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid api key")
				}
				log.Error("resolve api key failed", slog.Any("error", err))
				return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
			}
			c.Set(tenantContextKey, tenant)
			return next(c)
		}
	}
}

// APIKeyFromRequest reads the key from the header, then the query string.
func APIKeyFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	return strings.TrimSpace(r.URL.Query().Get(APIKeyQuery))
}

// TenantFromContext returns the tenant set by APIKeyMiddleware.
func TenantFromContext(c echo.Context) (tenants.Tenant, error) {
	tenant, ok := c.Get(tenantContextKey).(tenants.Tenant)
	if !ok || tenant.ID == "" {
		return tenants.Tenant{}, echo.NewHTTPError(http.StatusUnauthorized, "tenant missing")
	}
	return tenant, nil
}
