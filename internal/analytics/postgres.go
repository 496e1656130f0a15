package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/useembed/useembed/internal/db"
)

type PostgresStore struct {
	db db.DBTX
}

func NewPostgresStore(conn db.DBTX) *PostgresStore {
	return &PostgresStore{db: conn}
}

func (s *PostgresStore) InsertUsage(ctx context.Context, e UsageEvent) error {
	_, err := s.db.Exec(ctx, `INSERT INTO usage_events
		(tenant_id, session_id, user_id, conversation_id, type, input_tokens, output_tokens, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.TenantID, e.SessionID, e.UserID, e.ConversationID, string(e.Type), e.InputTokens, e.OutputTokens, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert usage event: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertAPICall(ctx context.Context, l APICallLog) error {
	_, err := s.db.Exec(ctx, `INSERT INTO api_call_logs
		(tenant_id, conversation_id, api_id, endpoint_id, method, url, status_code, duration_ms, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.TenantID, l.ConversationID, l.APIID, l.EndpointID, l.Method, l.URL, l.StatusCode, l.DurationMS, l.Error, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert api call log: %w", err)
	}
	return nil
}

func (s *PostgresStore) Counts(ctx context.Context, tenantID string, from, to time.Time) (Counts, error) {
	if to.IsZero() {
		to = time.Now().Add(time.Hour)
	}
	var c Counts
	err := s.db.QueryRow(ctx, `SELECT
		(SELECT count(*) FROM conversations WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3),
		(SELECT count(*) FROM messages m JOIN conversations c ON c.id = m.conversation_id
			WHERE c.tenant_id = $1 AND m.created_at >= $2 AND m.created_at < $3),
		(SELECT count(*) FROM api_call_logs WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3),
		(SELECT count(DISTINCT session_id) FROM conversations WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3),
		(SELECT COALESCE(avg(duration_ms), 0)::float8 FROM api_call_logs WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3)`,
		tenantID, from, to).Scan(&c.Conversations, &c.Messages, &c.APICalls, &c.ActiveUsers, &c.AvgDurationMS)
	if err != nil {
		return Counts{}, fmt.Errorf("analytics counts: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Daily(ctx context.Context, tenantID string, from time.Time) ([]DailyStat, error) {
	days := map[string]*DailyStat{}
	get := func(key string) *DailyStat {
		if days[key] == nil {
			days[key] = &DailyStat{Date: key}
		}
		return days[key]
	}
	queries := []struct {
		sql   string
		apply func(*DailyStat, int64)
	}{
		{`SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, count(*) FROM conversations
			WHERE tenant_id = $1 AND created_at >= $2 GROUP BY day`,
			func(d *DailyStat, n int64) { d.Conversations = n }},
		{`SELECT to_char(m.created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, count(*) FROM messages m
			JOIN conversations c ON c.id = m.conversation_id
			WHERE c.tenant_id = $1 AND m.created_at >= $2 GROUP BY day`,
			func(d *DailyStat, n int64) { d.Messages = n }},
		{`SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, count(*) FROM api_call_logs
			WHERE tenant_id = $1 AND created_at >= $2 GROUP BY day`,
			func(d *DailyStat, n int64) { d.APICalls = n }},
	}
	for _, q := range queries {
		rows, err := s.db.Query(ctx, q.sql, tenantID, from)
		if err != nil {
			return nil, fmt.Errorf("analytics daily: %w", err)
		}
		for rows.Next() {
			var (
				day string
				n   int64
			)
			if err := rows.Scan(&day, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("analytics daily scan: %w", err)
			}
			q.apply(get(day), n)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("analytics daily: %w", err)
		}
	}
	out := make([]DailyStat, 0, len(days))
	for _, d := range days {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *PostgresStore) TopAPIs(ctx context.Context, tenantID string, from time.Time, limit int) ([]TopAPI, error) {
	rows, err := s.db.Query(ctx, `SELECT l.api_id, COALESCE(a.name, ''), count(*) AS calls,
			(count(*) FILTER (WHERE l.error = '' AND l.status_code > 0 AND l.status_code < 400))::float8 / count(*) * 100
		FROM api_call_logs l
		LEFT JOIN registered_apis a ON a.id = l.api_id
		WHERE l.tenant_id = $1 AND l.created_at >= $2 AND l.api_id <> ''
		GROUP BY l.api_id, a.name
		ORDER BY calls DESC, l.api_id
		LIMIT $3`, tenantID, from, limit)
	if err != nil {
		return nil, fmt.Errorf("analytics top apis: %w", err)
	}
	defer rows.Close()
	out := []TopAPI{}
	for rows.Next() {
		var t TopAPI
		if err := rows.Scan(&t.APIID, &t.Name, &t.Calls, &t.SuccessRate); err != nil {
			return nil, fmt.Errorf("analytics top apis scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	usage, err := s.db.Exec(ctx, `DELETE FROM usage_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete usage events: %w", err)
	}
	calls, err := s.db.Exec(ctx, `DELETE FROM api_call_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return usage.RowsAffected(), fmt.Errorf("delete api call logs: %w", err)
	}
	return usage.RowsAffected() + calls.RowsAffected(), nil
}
