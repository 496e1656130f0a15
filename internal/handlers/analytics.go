package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/useembed/useembed/internal/analytics"
	"github.com/useembed/useembed/internal/auth"
)

type AnalyticsHandler struct {
	reporter *analytics.Reporter
	logger   *slog.Logger
}

func NewAnalyticsHandler(log *slog.Logger, reporter *analytics.Reporter) *AnalyticsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AnalyticsHandler{reporter: reporter, logger: log.With(slog.String("handler", "analytics"))}
}

func (h *AnalyticsHandler) Register(e *echo.Echo) {
	group := e.Group("/api/analytics")
	group.GET("/overview", h.Overview)
	group.GET("/usage", h.Usage)
}

// Overview godoc
// @Summary Totals for a period with trends against the previous one
// @Tags analytics
// @Produce json
// @Param period query string false "day, week or month" Enums(day, week, month)
// @Success 200 {object} analytics.Overview
// @Failure 401 {object} ErrorResponse
// @Router /api/analytics/overview [get]
func (h *AnalyticsHandler) Overview(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	out, err := h.reporter.Overview(c.Request().Context(), tenantID, analytics.ParsePeriod(c.QueryParam("period")))
	if err != nil {
		h.logger.Error("analytics overview failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
	}
	return c.JSON(http.StatusOK, out)
}

// Usage godoc
// @Summary Daily usage and the most called APIs
// @Tags analytics
// @Produce json
// @Param period query string false "day, week or month" Enums(day, week, month)
// @Success 200 {object} analytics.Usage
// @Router /api/analytics/usage [get]
func (h *AnalyticsHandler) Usage(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	out, err := h.reporter.Usage(c.Request().Context(), tenantID, analytics.ParsePeriod(c.QueryParam("period")))
	if err != nil {
		h.logger.Error("analytics usage failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
	}
	return c.JSON(http.StatusOK, out)
}
