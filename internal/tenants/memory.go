package tenants

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]Tenant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: map[string]Tenant{}}
}

func (m *MemoryStore) Create(ctx context.Context, t Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.tenants {
		if other.Slug == t.Slug || other.APIKey == t.APIKey {
			return ErrSlugConflict
		}
	}
	m.tenants[t.ID] = copyTenant(t)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	return copyTenant(t), nil
}

func (m *MemoryStore) GetByAPIKey(ctx context.Context, apiKey string) (Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tenants {
		if t.APIKey == apiKey {
			return copyTenant(t), nil
		}
	}
	return Tenant{}, ErrNotFound
}

func (m *MemoryStore) Update(ctx context.Context, t Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[t.ID]; !ok {
		return ErrNotFound
	}
	m.tenants[t.ID] = copyTenant(t)
	return nil
}

func copyTenant(t Tenant) Tenant {
	if t.Settings.AllowedDomains != nil {
		t.Settings.AllowedDomains = append([]string(nil), t.Settings.AllowedDomains...)
	}
	return t
}
