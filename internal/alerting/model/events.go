package model

import "time"

type MarketDataEventType string

const (
	MarketDataQuote     MarketDataEventType = "quote"
	MarketDataTrade     MarketDataEventType = "trade"
	MarketDataHeartbeat MarketDataEventType = "heartbeat"
)

// MarketDataEvent is pushed by a feed adapter or the simulator.
type MarketDataEvent struct {
	Type      MarketDataEventType `json:"type"`
	Feed      string              `json:"feed,omitempty"`
	Symbol    string              `json:"symbol"`
	Timestamp time.Time           `json:"timestamp"`
	Bid       *float64            `json:"bid,omitempty"`
	Ask       *float64            `json:"ask,omitempty"`
	Price     *float64            `json:"price,omitempty"`
	Volume    *float64            `json:"volume,omitempty"`
	LatencyMs *float64            `json:"latency_ms,omitempty"`
}

func (e *MarketDataEvent) Validate() error {
	switch e.Type {
	case MarketDataQuote, MarketDataTrade, MarketDataHeartbeat:
	default:
		return &InvalidEventError{Field: "type", Value: string(e.Type)}
	}
	if e.Type != MarketDataHeartbeat && e.Symbol == "" {
		return &InvalidEventError{Field: "symbol", Value: e.Symbol}
	}
	return nil
}

type OrderEventType string

const (
	OrderNew    OrderEventType = "new"
	OrderAck    OrderEventType = "ack"
	OrderFill   OrderEventType = "fill"
	OrderReject OrderEventType = "reject"
	OrderCancel OrderEventType = "cancel"
)

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderEvent is one step of an order's lifecycle as seen by the order gateway.
type OrderEvent struct {
	Type         OrderEventType `json:"type"`
	Gateway      string         `json:"gateway,omitempty"`
	OrderID      string         `json:"order_id"`
	Symbol       string         `json:"symbol"`
	Timestamp    time.Time      `json:"timestamp"`
	Side         OrderSide      `json:"side"`
	Quantity     float64        `json:"quantity"`
	Price        *float64       `json:"price,omitempty"`
	Status       string         `json:"status"`
	LatencyMs    *float64       `json:"latency_ms,omitempty"`
	RejectReason string         `json:"reject_reason,omitempty"`
}

func (e *OrderEvent) Validate() error {
	switch e.Type {
	case OrderNew, OrderAck, OrderFill, OrderReject, OrderCancel:
	default:
		return &InvalidEventError{Field: "type", Value: string(e.Type)}
	}
	if e.OrderID == "" {
		return &InvalidEventError{Field: "order_id", Value: e.OrderID}
	}
	switch e.Side {
	case SideBuy, SideSell:
	default:
		return &InvalidEventError{Field: "side", Value: string(e.Side)}
	}
	return nil
}
