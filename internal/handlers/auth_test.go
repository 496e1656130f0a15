package handlers

import (
	"net/http"
	"testing"

	"github.com/useembed/useembed/internal/accounts"
)

func TestLoginIssuesTenantScopedToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/auth/login", LoginRequest{Email: "OWNER@acme.test", Password: "password-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	resp := decode[LoginResponse](t, rec)
	if resp.AccessToken == "" || resp.TokenType != "Bearer" || resp.Tenant.ID != f.tenant.ID {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	rec = f.do(t, http.MethodGet, "/api/auth/me", nil, withBearer(resp.AccessToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("me: %d %s", rec.Code, rec.Body.String())
	}
	me := decode[accounts.Account](t, rec)
	if me.ID != f.account.ID {
		t.Fatalf("unexpected account: %+v", me)
	}

	rec = f.do(t, http.MethodPost, "/api/auth/refresh", nil, withBearer(resp.AccessToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", rec.Code, rec.Body.String())
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/auth/login", LoginRequest{Email: "owner@acme.test", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "not-an-email"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDashboardRoutesRequireToken(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, http.MethodGet, "/api/tenant", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/tenant", nil, withBearer("garbage")); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
	// A widget key is not a dashboard credential.
	if rec := f.do(t, http.MethodGet, "/api/tenant", nil, withAPIKey(f.tenant.APIKey)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with api key only, got %d", rec.Code)
	}
}
