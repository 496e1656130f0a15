package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/useembed/useembed/internal/auth"
	"github.com/useembed/useembed/internal/catalog"
	"github.com/useembed/useembed/internal/registry"
)

const maxImportBytes = 1 << 20

type APIsHandler struct {
	service *registry.Service
	catalog catalog.Source
	logger  *slog.Logger
}

func NewAPIsHandler(log *slog.Logger, service *registry.Service, source catalog.Source) *APIsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &APIsHandler{
		service: service,
		catalog: source,
		logger:  log.With(slog.String("handler", "apis")),
	}
}

func (h *APIsHandler) Register(e *echo.Echo) {
	group := e.Group("/api/apis")
	group.GET("", h.List)
	group.POST("", h.Create)
	group.POST("/import", h.Import)
	group.GET("/:id", h.Get)
	group.PUT("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
	group.PATCH("/:id/endpoints/:endpointId", h.ToggleEndpoint)
	group.GET("/:id/tools", h.PreviewTools)
	e.GET("/api/tools", h.Catalog)
}

type ToggleRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// List godoc
// @Summary List registered APIs
// @Tags apis
// @Produce json
// @Success 200 {array} registry.API
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/apis [get]
func (h *APIsHandler) List(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	items, err := h.service.List(c.Request().Context(), tenantID)
	if err != nil {
		return h.registryError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// Create godoc
// @Summary Register an API
// @Tags apis
// @Accept json
// @Produce json
// @Param request body registry.APIInput true "API definition"
// @Success 201 {object} registry.API
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/apis [post]
func (h *APIsHandler) Create(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	var req registry.APIInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	api, err := h.service.Create(c.Request().Context(), tenantID, req)
	if err != nil {
		return h.registryError(err)
	}
	return c.JSON(http.StatusCreated, api)
}

// Import godoc
// @Summary Import API definitions from YAML
// @Tags apis
// @Accept application/x-yaml
// @Produce json
// @Success 200 {object} registry.ImportSummary
// @Failure 400 {object} ErrorResponse
// @Router /api/apis/import [post]
func (h *APIsHandler) Import(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	defs, err := registry.ParseDefinitions(http.MaxBytesReader(c.Response(), c.Request().Body, maxImportBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	summary, err := h.service.Import(c.Request().Context(), tenantID, defs)
	if err != nil {
		return h.registryError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

// Get godoc
// @Summary Get a registered API
// @Tags apis
// @Produce json
// @Param id path string true "API ID"
// @Success 200 {object} registry.API
// @Failure 404 {object} ErrorResponse
// @Router /api/apis/{id} [get]
func (h *APIsHandler) Get(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	api, err := h.service.Get(c.Request().Context(), tenantID, c.Param("id"))
	if err != nil {
		return h.registryError(err)
	}
	return c.JSON(http.StatusOK, api)
}

// Update godoc
// @Summary Replace a registered API
// @Tags apis
// @Accept json
// @Produce json
// @Param id path string true "API ID"
// @Param request body registry.APIInput true "API definition"
// @Success 200 {object} registry.API
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/apis/{id} [put]
func (h *APIsHandler) Update(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	var req registry.APIInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	api, err := h.service.Update(c.Request().Context(), tenantID, c.Param("id"), req)
	if err != nil {
		return h.registryError(err)
	}
	return c.JSON(http.StatusOK, api)
}

// Delete godoc
// @Summary Delete a registered API
// @Tags apis
// @Param id path string true "API ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /api/apis/{id} [delete]
func (h *APIsHandler) Delete(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), tenantID, c.Param("id")); err != nil {
		return h.registryError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ToggleEndpoint godoc
// @Summary Enable or disable one endpoint
// @Tags apis
// @Accept json
// @Produce json
// @Param id path string true "API ID"
// @Param endpointId path string true "Endpoint ID"
// @Param request body ToggleRequest true "State"
// @Success 200 {object} registry.API
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/apis/{id}/endpoints/{endpointId} [patch]
func (h *APIsHandler) ToggleEndpoint(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	var req ToggleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	api, err := h.service.SetEndpointActive(c.Request().Context(), tenantID, c.Param("id"), c.Param("endpointId"), *req.IsActive)
	if err != nil {
		return h.registryError(err)
	}
	return c.JSON(http.StatusOK, api)
}

// PreviewTools godoc
// @Summary Preview the tools one API contributes
// @Tags apis
// @Produce json
// @Param id path string true "API ID"
// @Success 200 {array} catalog.Tool
// @Failure 404 {object} ErrorResponse
// @Router /api/apis/{id}/tools [get]
func (h *APIsHandler) PreviewTools(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	api, err := h.service.Get(c.Request().Context(), tenantID, c.Param("id"))
	if err != nil {
		return h.registryError(err)
	}
	return c.JSON(http.StatusOK, catalog.BuildTools([]registry.API{api}))
}

// Catalog godoc
// @Summary The tenant's full tool catalog as the model sees it
// @Tags apis
// @Produce json
// @Success 200 {array} catalog.Tool
// @Router /api/tools [get]
func (h *APIsHandler) Catalog(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	tools, err := h.catalog.Build(c.Request().Context(), tenantID)
	if err != nil {
		return h.registryError(err)
	}
	return c.JSON(http.StatusOK, tools)
}

func (h *APIsHandler) registryError(err error) error {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrNameConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("registry request failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
	}
}
