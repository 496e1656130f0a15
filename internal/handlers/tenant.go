package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/useembed/useembed/internal/auth"
	"github.com/useembed/useembed/internal/tenants"
)

type TenantHandler struct {
	service *tenants.Service
	logger  *slog.Logger
}

func NewTenantHandler(log *slog.Logger, service *tenants.Service) *TenantHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TenantHandler{service: service, logger: log.With(slog.String("handler", "tenant"))}
}

func (h *TenantHandler) Register(e *echo.Echo) {
	group := e.Group("/api/tenant")
	group.GET("", h.Get)
	group.PUT("/settings", h.UpdateSettings)
	group.POST("/api-key/rotate", h.RotateAPIKey)
}

// Get godoc
// @Summary The caller's tenant, including its widget API key
// @Tags tenant
// @Produce json
// @Success 200 {object} tenants.Tenant
// @Failure 401 {object} ErrorResponse
// @Router /api/tenant [get]
func (h *TenantHandler) Get(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	tenant, err := h.service.GetByID(c.Request().Context(), tenantID)
	if err != nil {
		return h.tenantError(err)
	}
	return c.JSON(http.StatusOK, tenant)
}

// UpdateSettings godoc
// @Summary Replace widget and assistant settings
// @Tags tenant
// @Accept json
// @Produce json
// @Param request body tenants.Settings true "Settings"
// @Success 200 {object} tenants.Tenant
// @Failure 400 {object} ErrorResponse
// @Router /api/tenant/settings [put]
func (h *TenantHandler) UpdateSettings(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	var req tenants.Settings
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	tenant, err := h.service.UpdateSettings(c.Request().Context(), tenantID, req)
	if err != nil {
		return h.tenantError(err)
	}
	return c.JSON(http.StatusOK, tenant)
}

// RotateAPIKey godoc
// @Summary Issue a new widget API key; the old one stops working
// @Tags tenant
// @Produce json
// @Success 200 {object} tenants.Tenant
// @Router /api/tenant/api-key/rotate [post]
func (h *TenantHandler) RotateAPIKey(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	tenant, err := h.service.RotateAPIKey(c.Request().Context(), tenantID)
	if err != nil {
		return h.tenantError(err)
	}
	return c.JSON(http.StatusOK, tenant)
}

func (h *TenantHandler) tenantError(err error) error {
	if errors.Is(err, tenants.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
	}
	if errors.Is(err, tenants.ErrInvalid) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	h.logger.Error("tenant request failed", slog.Any("error", err))
	return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
}
