// Package simulator produces synthetic market-data and order events for a small
// set of symbols, with chaos toggles to provoke each alert rule.
package simulator

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/qiniu/venueops/internal/alerting/model"
	"github.com/shopspring/decimal"
)

const (
	// MessageRate is the nominal market-data rate at the default tick.
	MessageRate = 20

	heartbeatShare = 0.1
	tradeShare     = 0.3
	rejectReason   = "INSUFFICIENT_MARGIN"
)

var (
	stepFraction   = decimal.New(1, -3) // max relative price move per message
	spreadFraction = decimal.New(5, -4) // 5 bps
	maxExposure    = decimal.NewFromInt(1_200_000)
)

var startPrices = []struct {
	symbol string
	price  int64
}{
	{"BTC/USD", 45000},
	{"ETH/USD", 2500},
	{"SOL/USD", 100},
	{"AAPL", 180},
	{"TSLA", 250},
}

// Chaos is the current fault injection setup. Zero values disable a fault.
type Chaos struct {
	LatencySpikeMs float64 `json:"latencySpike"`
	StaleData      bool    `json:"staleData"`
	RejectRate     float64 `json:"rejectRate"`
}

// Simulator is a seeded random walk over symbol prices. Safe for concurrent use.
type Simulator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	symbols []string
	prices  map[string]decimal.Decimal
	chaos   Chaos
	seq     uint64
	now     func() time.Time
}

// New returns a simulator seeded with seed; 0 picks a random seed.
func New(seed uint64) *Simulator {
	if seed == 0 {
		seed = rand.Uint64()
	}
	s := &Simulator{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		prices: make(map[string]decimal.Decimal, len(startPrices)),
		now:    time.Now,
	}
	for _, p := range startPrices {
		s.symbols = append(s.symbols, p.symbol)
		s.prices[p.symbol] = decimal.NewFromInt(p.price)
	}
	return s
}

func (s *Simulator) SetLatencySpike(enabled bool, ms float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !enabled {
		ms = 0
	}
	s.chaos.LatencySpikeMs = ms
}

func (s *Simulator) SetStaleData(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chaos.StaleData = enabled
}

func (s *Simulator) SetRejects(enabled bool, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !enabled {
		rate = 0
	}
	s.chaos.RejectRate = rate
}

func (s *Simulator) Chaos() Chaos {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chaos
}

// Price returns the current price of symbol, zero when unknown.
func (s *Simulator) Price(symbol string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prices[symbol]
}

func (s *Simulator) pickSymbol() string {
	return s.symbols[s.rng.IntN(len(s.symbols))]
}

func (s *Simulator) latencyLocked(base, spread float64) float64 {
	if s.chaos.LatencySpikeMs > 0 {
		return s.chaos.LatencySpikeMs
	}
	return s.rng.Float64()*spread + base
}

// GenerateMarketData moves one symbol's price and returns the resulting message:
// about 10% heartbeats, then trades and quotes.
func (s *Simulator) GenerateMarketData() model.MarketDataEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbol := s.pickSymbol()
	price := s.prices[symbol]
	change := decimal.NewFromFloat(s.rng.Float64() - 0.5).Mul(price).Mul(stepFraction)
	price = price.Add(change)
	s.prices[symbol] = price

	latency := s.latencyLocked(1, 10)
	ev := model.MarketDataEvent{Timestamp: s.now(), LatencyMs: &latency}
	switch {
	case s.rng.Float64() < heartbeatShare:
		ev.Type = model.MarketDataHeartbeat
		ev.Symbol = "SYSTEM"
	case s.rng.Float64() < tradeShare:
		ev.Type = model.MarketDataTrade
		ev.Symbol = symbol
		p := price.Round(4).InexactFloat64()
		vol := float64(s.rng.IntN(100) + 1)
		ev.Price, ev.Volume = &p, &vol
	default:
		ev.Type = model.MarketDataQuote
		ev.Symbol = symbol
		spread := price.Mul(spreadFraction)
		bid := price.Sub(spread).Round(4).InexactFloat64()
		ask := price.Add(spread).Round(4).InexactFloat64()
		ev.Bid, ev.Ask = &bid, &ask
	}
	return ev
}

// NextOrderID returns a fresh order id.
func (s *Simulator) NextOrderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("ORD-%d-%d", s.now().UnixMilli(), s.seq)
}

// GenerateOrderEvent returns the gateway's answer to a new order: an ack, or a
// reject with the configured chaos probability.
func (s *Simulator) GenerateOrderEvent(orderID string) model.OrderEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbol := s.pickSymbol()
	latency := s.latencyLocked(5, 20)
	side := model.SideBuy
	if s.rng.Float64() < 0.5 {
		side = model.SideSell
	}
	ev := model.OrderEvent{
		OrderID:   orderID,
		Symbol:    symbol,
		Timestamp: s.now(),
		Side:      side,
		Quantity:  float64(s.rng.IntN(100) + 1),
		LatencyMs: &latency,
	}
	if s.chaos.RejectRate > 0 && s.rng.Float64() < s.chaos.RejectRate {
		ev.Type = model.OrderReject
		ev.Status = "rejected"
		ev.RejectReason = rejectReason
		return ev
	}
	p := s.prices[symbol].Round(4).InexactFloat64()
	ev.Type = model.OrderAck
	ev.Status = "acknowledged"
	ev.Price = &p
	return ev
}

// Exposure draws the current total position exposure, uniform in [0, 1.2M).
func (s *Simulator) Exposure() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return decimal.NewFromFloat(s.rng.Float64()).Mul(maxExposure).Round(2).InexactFloat64()
}

// Roll reports whether an event with probability p happens.
func (s *Simulator) Roll(p float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < p
}
