package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	claimSubject   = "sub"
	claimAccountID = "account_id"
	claimTenantID  = "tenant_id"
	claimRole      = "role"
)

// Identity is the dashboard caller carried by a token.
type Identity struct {
	AccountID string
	TenantID  string
	Role      string
}

// JWTMiddleware returns a JWT auth middleware configured for HS256 tokens.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		TokenLookup:   "header:Authorization:Bearer ,query:token",
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// IdentityFromContext extracts the account and tenant from JWT claims.
func IdentityFromContext(c echo.Context) (Identity, error) {
	claims, err := claimsFromContext(c)
	if err != nil {
		return Identity{}, err
	}
	id := Identity{
		AccountID: claimString(claims, claimAccountID),
		TenantID:  claimString(claims, claimTenantID),
		Role:      claimString(claims, claimRole),
	}
	if id.AccountID == "" {
		id.AccountID = claimString(claims, claimSubject)
	}
	if id.AccountID == "" {
		return Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "account id missing")
	}
	if id.TenantID == "" {
		return Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "tenant id missing")
	}
	return id, nil
}

// TenantIDFromContext returns the tenant of the dashboard caller.
func TenantIDFromContext(c echo.Context) (string, error) {
	id, err := IdentityFromContext(c)
	if err != nil {
		return "", err
	}
	return id.TenantID, nil
}

// GenerateToken creates a signed JWT for the account.
func GenerateToken(id Identity, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(id.AccountID) == "" {
		return "", time.Time{}, fmt.Errorf("account id is required")
	}
	if strings.TrimSpace(id.TenantID) == "" {
		return "", time.Time{}, fmt.Errorf("tenant id is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject:   id.AccountID,
		claimAccountID: id.AccountID,
		claimTenantID:  id.TenantID,
		claimRole:      id.Role,
		"iat":          now.Unix(),
		"exp":          expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// RefreshTokenFromContext reissues the caller's token with the lifetime of the
// original one, or defaultExpiresIn when that cannot be derived.
func RefreshTokenFromContext(c echo.Context, secret string, defaultExpiresIn time.Duration) (string, time.Time, error) {
	claims, err := claimsFromContext(c)
	if err != nil {
		return "", time.Time{}, err
	}
	id, err := IdentityFromContext(c)
	if err != nil {
		return "", time.Time{}, err
	}
	expiresIn := defaultExpiresIn
	iat, errIat := claims.GetIssuedAt()
	exp, errExp := claims.GetExpirationTime()
	if errIat == nil && errExp == nil && iat != nil && exp != nil {
		if d := exp.Sub(iat.Time); d > 0 {
			expiresIn = d
		}
	}
	return GenerateToken(id, secret, expiresIn)
}

func claimsFromContext(c echo.Context) (jwt.MapClaims, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
