package analytics

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps analytics in process memory. Conversation and message counts are
// derived from message usage events: each event is one user/assistant exchange.
type MemoryStore struct {
	mu       sync.RWMutex
	usage    []UsageEvent
	apiCalls []APICallLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) InsertUsage(_ context.Context, event UsageEvent) error {
	m.mu.Lock()
	m.usage = append(m.usage, event)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) InsertAPICall(_ context.Context, log APICallLog) error {
	m.mu.Lock()
	m.apiCalls = append(m.apiCalls, log)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) UsageEvents() []UsageEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]UsageEvent(nil), m.usage...)
}

func (m *MemoryStore) APICalls() []APICallLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]APICallLog(nil), m.apiCalls...)
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && (to.IsZero() || t.Before(to))
}

func (m *MemoryStore) Counts(_ context.Context, tenantID string, from, to time.Time) (Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var c Counts
	conversations := map[string]struct{}{}
	sessions := map[string]struct{}{}
	for _, e := range m.usage {
		if e.TenantID != tenantID || e.Type != EventMessage || !inWindow(e.CreatedAt, from, to) {
			continue
		}
		conversations[e.ConversationID] = struct{}{}
		sessions[e.SessionID] = struct{}{}
		c.Messages += 2
	}
	c.Conversations = int64(len(conversations))
	c.ActiveUsers = int64(len(sessions))
	var total int64
	for _, l := range m.apiCalls {
		if l.TenantID != tenantID || !inWindow(l.CreatedAt, from, to) {
			continue
		}
		c.APICalls++
		total += l.DurationMS
	}
	if c.APICalls > 0 {
		c.AvgDurationMS = float64(total) / float64(c.APICalls)
	}
	return c, nil
}

func (m *MemoryStore) Daily(_ context.Context, tenantID string, from time.Time) ([]DailyStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	days := map[string]*DailyStat{}
	convSeen := map[string]map[string]struct{}{}
	get := func(t time.Time) *DailyStat {
		key := t.UTC().Format(time.DateOnly)
		if days[key] == nil {
			days[key] = &DailyStat{Date: key}
			convSeen[key] = map[string]struct{}{}
		}
		return days[key]
	}
	for _, e := range m.usage {
		if e.TenantID != tenantID || e.Type != EventMessage || e.CreatedAt.Before(from) {
			continue
		}
		day := get(e.CreatedAt)
		day.Messages += 2
		if _, ok := convSeen[day.Date][e.ConversationID]; !ok {
			convSeen[day.Date][e.ConversationID] = struct{}{}
			day.Conversations++
		}
	}
	for _, l := range m.apiCalls {
		if l.TenantID != tenantID || l.CreatedAt.Before(from) {
			continue
		}
		get(l.CreatedAt).APICalls++
	}
	out := make([]DailyStat, 0, len(days))
	for _, d := range days {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (m *MemoryStore) TopAPIs(_ context.Context, tenantID string, from time.Time, limit int) ([]TopAPI, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type agg struct{ calls, ok int64 }
	byAPI := map[string]*agg{}
	for _, l := range m.apiCalls {
		if l.TenantID != tenantID || l.CreatedAt.Before(from) || l.APIID == "" {
			continue
		}
		a := byAPI[l.APIID]
		if a == nil {
			a = &agg{}
			byAPI[l.APIID] = a
		}
		a.calls++
		if l.Error == "" && l.StatusCode > 0 && l.StatusCode < 400 {
			a.ok++
		}
	}
	out := make([]TopAPI, 0, len(byAPI))
	for id, a := range byAPI {
		out = append(out, TopAPI{APIID: id, Calls: a.calls, SuccessRate: float64(a.ok) / float64(a.calls) * 100})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Calls != out[j].Calls {
			return out[i].Calls > out[j].Calls
		}
		return out[i].APIID < out[j].APIID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	usage := m.usage[:0]
	for _, e := range m.usage {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		usage = append(usage, e)
	}
	m.usage = usage
	calls := m.apiCalls[:0]
	for _, l := range m.apiCalls {
		if l.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		calls = append(calls, l)
	}
	m.apiCalls = calls
	return removed, nil
}
