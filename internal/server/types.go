package server

import (
	"context"
	"time"

	"keyword_relay/internal/unmatched"
)

// Replier sends a text reply for a LINE reply token.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// Recorder takes unmatched log entries. Record must not block.
type Recorder interface {
	Record(e unmatched.Entry)
}

// Tenant is a LINE channel resolved by its webhook signature.
type Tenant struct {
	Name          string
	ChannelSecret string
	TableID       string
	Replier       Replier
}

// MatchRequest is the debug /match input. Table takes precedence over
// Tenant.
type MatchRequest struct {
	Table  string `json:"table" form:"table" query:"table"`
	Tenant string `json:"tenant" form:"tenant" query:"tenant"`
	Text   string `json:"text" form:"text" query:"text"`
}

type MatchResponse struct {
	Table    string `json:"table"`
	Matched  bool   `json:"matched"`
	Result   string `json:"result"`
	Priority int    `json:"priority,omitempty"`
	Row      int    `json:"row,omitempty"`
	Rules    int    `json:"rules"`
}

type ReloadResponse struct {
	Message    string    `json:"message"`
	Table      string    `json:"table,omitempty"`
	ReloadedAt time.Time `json:"reloaded_at"`
}
