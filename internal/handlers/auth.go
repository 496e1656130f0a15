package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/useembed/useembed/internal/accounts"
	"github.com/useembed/useembed/internal/auth"
	"github.com/useembed/useembed/internal/tenants"
)

// Authenticator verifies dashboard credentials. Implemented by *accounts.Service.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (accounts.Account, error)
	Get(ctx context.Context, id string) (accounts.Account, error)
}

type TenantReader interface {
	GetByID(ctx context.Context, id string) (tenants.Tenant, error)
}

type AuthHandler struct {
	accounts  Authenticator
	tenants   TenantReader
	secret    string
	expiresIn time.Duration
	logger    *slog.Logger
}

func NewAuthHandler(log *slog.Logger, accountService Authenticator, tenantService TenantReader, secret string, expiresIn time.Duration) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{
		accounts:  accountService,
		tenants:   tenantService,
		secret:    secret,
		expiresIn: expiresIn,
		logger:    log.With(slog.String("handler", "auth")),
	}
}

func (h *AuthHandler) Register(e *echo.Echo) {
	group := e.Group("/api/auth")
	group.POST("/login", h.Login)
	group.POST("/refresh", h.Refresh)
	group.GET("/me", h.Me)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string           `json:"access_token"`
	TokenType   string           `json:"token_type"`
	ExpiresAt   time.Time        `json:"expires_at"`
	Account     accounts.Account `json:"account"`
	Tenant      tenants.Tenant   `json:"tenant"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login godoc
// @Summary Dashboard login
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	account, err := h.accounts.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, accounts.ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
		}
		h.logger.Error("login failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
	}
	tenant, err := h.tenants.GetByID(ctx, account.TenantID)
	if err != nil {
		h.logger.Error("load tenant for login failed", slog.String("account_id", account.ID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
	}
	token, expiresAt, err := auth.GenerateToken(auth.Identity{
		AccountID: account.ID,
		TenantID:  account.TenantID,
		Role:      account.Role,
	}, h.secret, h.expiresIn)
	if err != nil {
		h.logger.Error("issue token failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
	}
	return c.JSON(http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		Account:     account,
		Tenant:      tenant,
	})
}

// Refresh godoc
// @Summary Reissue the caller's token
// @Tags auth
// @Produce json
// @Success 200 {object} TokenResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	token, expiresAt, err := auth.RefreshTokenFromContext(c, h.secret, h.expiresIn)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt})
}

// Me godoc
// @Summary Current dashboard account
// @Tags auth
// @Produce json
// @Success 200 {object} accounts.Account
// @Failure 401 {object} ErrorResponse
// @Router /api/auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	id, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	account, err := h.accounts.Get(c.Request().Context(), id.AccountID)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return echo.NewHTTPError(http.StatusUnauthorized, "account not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, account)
}
