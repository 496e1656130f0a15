package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIdentity = Identity{AccountID: "acc-123", TenantID: "tenant-1", Role: "owner"}

func parse(t *testing.T, raw, secret string) *jwt.Token {
	t.Helper()
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	require.NoError(t, err)
	return token
}

func TestIdentityFromContext(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	raw, _, err := GenerateToken(testIdentity, "test-secret", time.Minute)
	require.NoError(t, err)
	c.Set("user", parse(t, raw, "test-secret"))

	id, err := IdentityFromContext(c)
	require.NoError(t, err)
	assert.Equal(t, testIdentity, id)

	tenantID, err := TenantIDFromContext(c)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenantID)
}

func TestGenerateTokenRequiresTenant(t *testing.T) {
	_, _, err := GenerateToken(Identity{AccountID: "acc"}, "secret", time.Minute)
	assert.Error(t, err)
	_, _, err = GenerateToken(testIdentity, "", time.Minute)
	assert.Error(t, err)
	_, _, err = GenerateToken(testIdentity, "secret", 0)
	assert.Error(t, err)
}

func TestRefreshTokenFromContext(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	secret := "test-secret"

	initialTokenStr, _, err := GenerateToken(testIdentity, secret, 5*time.Minute)
	require.NoError(t, err)
	token := parse(t, initialTokenStr, secret)
	c.Set("user", token)

	// iat has second precision.
	time.Sleep(1 * time.Second)

	newTokenStr, newExpiresAt, err := RefreshTokenFromContext(c, secret, time.Hour)
	require.NoError(t, err)

	originalClaims := token.Claims.(jwt.MapClaims)
	origIat := int64(originalClaims["iat"].(float64))

	newToken := parse(t, newTokenStr, secret)
	assert.True(t, newToken.Valid)
	newClaims := newToken.Claims.(jwt.MapClaims)

	assert.Equal(t, "acc-123", newClaims[claimSubject])
	assert.Equal(t, "tenant-1", newClaims[claimTenantID])

	newIat := int64(newClaims["iat"].(float64))
	newExp := int64(newClaims["exp"].(float64))
	assert.Greater(t, newIat, origIat)
	assert.Equal(t, int64(5*60), newExp-newIat)
	assert.Equal(t, newExpiresAt.Unix(), newExp)
}

func TestRefreshTokenFromContext_MissingUser(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())

	_, _, err := RefreshTokenFromContext(c, "test-secret", time.Hour)
	require.Error(t, err)

	var httpErr *echo.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	assert.Equal(t, "invalid token", httpErr.Message)
}
