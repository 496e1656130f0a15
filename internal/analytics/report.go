package analytics

import (
	"context"
	"math"
	"time"
)

type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod falls back to a week for unknown values.
func ParsePeriod(v string) Period {
	switch Period(v) {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return Period(v)
	default:
		return PeriodWeek
	}
}

// Overview summarizes a period and its trend against the previous one.
type Overview struct {
	TotalConversations         int64   `json:"total_conversations"`
	TotalMessages              int64   `json:"total_messages"`
	TotalAPICalls              int64   `json:"total_api_calls"`
	ActiveUsers                int64   `json:"active_users"`
	AvgResponseTime            float64 `json:"avg_response_time"`
	AvgMessagesPerConversation float64 `json:"avg_messages_per_conversation"`
	ConversationsTrend         int     `json:"conversations_trend"`
	MessagesTrend              int     `json:"messages_trend"`
	APICallsTrend              int     `json:"api_calls_trend"`
	UsersTrend                 int     `json:"users_trend"`
}

type Usage struct {
	DailyStats []DailyStat `json:"daily_stats"`
	TopAPIs    []TopAPI    `json:"top_apis"`
}

type Reporter struct {
	store Store
	now   func() time.Time
}

func NewReporter(store Store) *Reporter {
	return &Reporter{store: store, now: time.Now}
}

func (r *Reporter) Overview(ctx context.Context, tenantID string, period Period) (Overview, error) {
	now := r.now().UTC()
	start := startOf(now, period, 1)
	prevStart := startOf(now, period, 2)

	cur, err := r.store.Counts(ctx, tenantID, start, time.Time{})
	if err != nil {
		return Overview{}, err
	}
	prev, err := r.store.Counts(ctx, tenantID, prevStart, start)
	if err != nil {
		return Overview{}, err
	}
	o := Overview{
		TotalConversations: cur.Conversations,
		TotalMessages:      cur.Messages,
		TotalAPICalls:      cur.APICalls,
		ActiveUsers:        cur.ActiveUsers,
		AvgResponseTime:    cur.AvgDurationMS / 1000,
		ConversationsTrend: trend(cur.Conversations, prev.Conversations),
		MessagesTrend:      trend(cur.Messages, prev.Messages),
		APICallsTrend:      trend(cur.APICalls, prev.APICalls),
		UsersTrend:         trend(cur.ActiveUsers, prev.ActiveUsers),
	}
	if cur.Conversations > 0 {
		o.AvgMessagesPerConversation = float64(cur.Messages) / float64(cur.Conversations)
	}
	return o, nil
}

func (r *Reporter) Usage(ctx context.Context, tenantID string, period Period) (Usage, error) {
	start := startOf(r.now().UTC(), period, 1)
	daily, err := r.store.Daily(ctx, tenantID, start)
	if err != nil {
		return Usage{}, err
	}
	top, err := r.store.TopAPIs(ctx, tenantID, start, 10)
	if err != nil {
		return Usage{}, err
	}
	return Usage{DailyStats: daily, TopAPIs: top}, nil
}

func startOf(now time.Time, period Period, n int) time.Time {
	switch period {
	case PeriodDay:
		return now.AddDate(0, 0, -n)
	case PeriodMonth:
		return now.AddDate(0, -n, 0)
	default:
		return now.AddDate(0, 0, -7*n)
	}
}

// trend is the rounded percentage change; 100 when growing from zero.
func trend(current, previous int64) int {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return int(math.Round(float64(current-previous) / float64(previous) * 100))
}
