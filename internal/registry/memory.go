package registry

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// MemoryStore keeps registered APIs in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	order []string
	apis  map[string]API
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{apis: map[string]API{}}
}

func (m *MemoryStore) ListActive(ctx context.Context, tenantID string) ([]API, error) {
	return m.list(tenantID, true), nil
}

func (m *MemoryStore) List(ctx context.Context, tenantID string) ([]API, error) {
	return m.list(tenantID, false), nil
}

func (m *MemoryStore) list(tenantID string, activeOnly bool) []API {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []API{}
	for _, id := range m.order {
		api := m.apis[id]
		if api.TenantID != tenantID || (activeOnly && !api.IsActive) {
			continue
		}
		out = append(out, clone(api))
	}
	return out
}

func (m *MemoryStore) Get(ctx context.Context, tenantID, id string) (API, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	api, ok := m.apis[id]
	if !ok || api.TenantID != tenantID {
		return API{}, ErrNotFound
	}
	return clone(api), nil
}

func (m *MemoryStore) FindByName(ctx context.Context, tenantID, name string) (API, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		api := m.apis[id]
		if api.TenantID == tenantID && api.IsActive && strings.EqualFold(api.Name, name) {
			return clone(api), nil
		}
	}
	return API{}, ErrNotFound
}

func (m *MemoryStore) Create(ctx context.Context, api API) (API, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameTaken(api) {
		return API{}, ErrNameConflict
	}
	m.apis[api.ID] = clone(api)
	m.order = append(m.order, api.ID)
	return clone(api), nil
}

func (m *MemoryStore) Update(ctx context.Context, api API) (API, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.apis[api.ID]
	if !ok || prev.TenantID != api.TenantID {
		return API{}, ErrNotFound
	}
	if m.nameTaken(api) {
		return API{}, ErrNameConflict
	}
	m.apis[api.ID] = clone(api)
	return clone(api), nil
}

func (m *MemoryStore) Delete(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	api, ok := m.apis[id]
	if !ok || api.TenantID != tenantID {
		return ErrNotFound
	}
	delete(m.apis, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) nameTaken(api API) bool {
	for _, other := range m.apis {
		if other.ID != api.ID && other.TenantID == api.TenantID && strings.EqualFold(other.Name, api.Name) {
			return true
		}
	}
	return false
}

// clone deep-copies through JSON so callers cannot mutate stored maps and slices.
func clone(api API) API {
	raw, err := json.Marshal(api)
	if err != nil {
		return api
	}
	var out API
	if err := json.Unmarshal(raw, &out); err != nil {
		return api
	}
	return out
}
