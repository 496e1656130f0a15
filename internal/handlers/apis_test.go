package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/useembed/useembed/internal/catalog"
	"github.com/useembed/useembed/internal/registry"
)

func newAPIsFixture(t *testing.T) (*fixture, requestOption) {
	t.Helper()
	svc := registry.NewService(nil, registry.NewMemoryStore())
	f := newFixture(t, NewAPIsHandler(nil, svc, catalog.NewBuilder(svc.Store())))
	return f, withBearer(f.token(t))
}

var ordersAPI = registry.APIInput{
	Name:    "Orders",
	BaseURL: "https://shop.example.com/api",
	Endpoints: []registry.EndpointInput{
		{
			Name:   "get_status",
			Method: "GET",
			Path:   "/orders/{id}/status",
			Parameters: []registry.Parameter{
				{Name: "id", In: registry.InPath, Type: "string", Required: true},
			},
		},
		{Name: "list", Method: "GET", Path: "/orders"},
	},
}

func TestAPIsCRUD(t *testing.T) {
	f, bearer := newAPIsFixture(t)

	rec := f.do(t, http.MethodPost, "/api/apis", ordersAPI, bearer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[registry.API](t, rec)
	assert.Equal(t, f.tenant.ID, created.TenantID)
	require.Len(t, created.Endpoints, 2)

	rec = f.do(t, http.MethodPost, "/api/apis", ordersAPI, bearer)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/apis", nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]registry.API](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/api/tools", nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]catalog.Tool](t, rec), 2)

	endpointID := created.Endpoints[1].ID
	rec = f.do(t, http.MethodPatch, "/api/apis/"+created.ID+"/endpoints/"+endpointID, map[string]bool{"is_active": false}, bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/apis/"+created.ID+"/tools", nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	tools := decode[[]catalog.Tool](t, rec)
	require.Len(t, tools, 1)
	assert.Equal(t, "Orders_get_status", tools[0].Name)

	rec = f.do(t, http.MethodDelete, "/api/apis/"+created.ID, nil, bearer)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/apis/"+created.ID, nil, bearer)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIsValidation(t *testing.T) {
	f, bearer := newAPIsFixture(t)

	bad := ordersAPI
	bad.Endpoints = []registry.EndpointInput{{Name: "get", Method: "GET", Path: "/orders/{id}"}}
	rec := f.do(t, http.MethodPost, "/api/apis", bad, bearer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/apis/x/endpoints/y", map[string]string{}, bearer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIsImportYAML(t *testing.T) {
	f, bearer := newAPIsFixture(t)

	doc := `apis:
  - name: Orders
    base_url: https://shop.example.com
    endpoints:
      - name: list
        method: GET
        path: /orders
`
	rec := f.do(t, http.MethodPost, "/api/apis/import", doc, bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, registry.ImportSummary{Created: 1}, decode[registry.ImportSummary](t, rec))

	rec = f.do(t, http.MethodPost, "/api/apis/import", "apis: [ {", bearer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIsAreTenantScoped(t *testing.T) {
	f, bearer := newAPIsFixture(t)
	rec := f.do(t, http.MethodPost, "/api/apis", ordersAPI, bearer)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[registry.API](t, rec)

	other, err := f.tenants.Create(t.Context(), "Other", "")
	require.NoError(t, err)
	otherAccount, err := f.accounts.Create(t.Context(), accountInput(other.ID, "other@example.com"))
	require.NoError(t, err)
	f.account, f.tenant = otherAccount, other

	rec = f.do(t, http.MethodGet, "/api/apis/"+created.ID, nil, withBearer(f.token(t)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
