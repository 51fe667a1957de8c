package model

import "time"

type FeedType string

const (
	FeedMarketData   FeedType = "market_data"
	FeedOrderGateway FeedType = "order_gateway"
)

type FeedStatus string

const (
	FeedHealthy  FeedStatus = "healthy"
	FeedDegraded FeedStatus = "degraded"
	FeedDown     FeedStatus = "down"
)

// FeedHealth is the latest known state of one monitored feed.
type FeedHealth struct {
	FeedName      string     `json:"feed_name"`
	FeedType      FeedType   `json:"feed_type"`
	LastHeartbeat time.Time  `json:"last_heartbeat"`
	Status        FeedStatus `json:"status"`
	LatencyMs     float64    `json:"latency_ms"`
	MessageCount  int64      `json:"message_count"`
	ErrorCount    int64      `json:"error_count"`
}

// FeedHeartbeat is one observed message on a feed. Upserting it bumps MessageCount
// by one and ErrorCount by one when Error is set.
type FeedHeartbeat struct {
	FeedName  string
	FeedType  FeedType
	At        time.Time
	Status    FeedStatus
	LatencyMs float64
	Error     bool
}
