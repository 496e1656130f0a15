package analytics

import (
	"context"
	"time"
)

type EventType string

const (
	EventMessage       EventType = "message"
	EventToolExecution EventType = "tool_execution"
)

// UsageEvent records token usage of one processed message or executed tool round.
type UsageEvent struct {
	TenantID       string    `json:"tenant_id"`
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id,omitempty"`
	ConversationID string    `json:"conversation_id"`
	Type           EventType `json:"type"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	CreatedAt      time.Time `json:"created_at"`
}

// APICallLog records one outbound request issued for a tool call.
type APICallLog struct {
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id"`
	APIID          string    `json:"api_id"`
	EndpointID     string    `json:"endpoint_id"`
	Method         string    `json:"method"`
	URL            string    `json:"url"`
	StatusCode     int       `json:"status_code"`
	DurationMS     int64     `json:"duration_ms"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Sink accepts analytics records. Implementations must not block callers for long.
type Sink interface {
	RecordMessageUsage(ctx context.Context, event UsageEvent) error
	RecordAPICall(ctx context.Context, log APICallLog) error
}

// Counts are the raw totals of one reporting window.
type Counts struct {
	Conversations int64
	Messages      int64
	APICalls      int64
	ActiveUsers   int64
	AvgDurationMS float64
}

type DailyStat struct {
	Date          string `json:"date"`
	Conversations int64  `json:"conversations"`
	Messages      int64  `json:"messages"`
	APICalls      int64  `json:"api_calls"`
}

type TopAPI struct {
	APIID       string  `json:"api_id"`
	Name        string  `json:"name"`
	Calls       int64   `json:"calls"`
	SuccessRate float64 `json:"success_rate"`
}

// Store persists analytics records and answers report queries.
type Store interface {
	InsertUsage(ctx context.Context, event UsageEvent) error
	InsertAPICall(ctx context.Context, log APICallLog) error
	Counts(ctx context.Context, tenantID string, from, to time.Time) (Counts, error)
	Daily(ctx context.Context, tenantID string, from time.Time) ([]DailyStat, error)
	TopAPIs(ctx context.Context, tenantID string, from time.Time, limit int) ([]TopAPI, error)
	// DeleteBefore removes usage events and API call logs older than cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
