package simulator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/qiniu/venueops/internal/alerting/model"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTickInterval = 50 * time.Millisecond
	orderProbability    = 0.3
)

// ErrInvalidCommand is returned by Apply for an unknown action or bad chaos config.
var ErrInvalidCommand = errors.New("invalid simulator command")

// Sink receives the generated events.
type Sink interface {
	MarketData(ctx context.Context, ev *model.MarketDataEvent) error
	Order(ctx context.Context, ev *model.OrderEvent) (bool, error)
	Position(exposure float64) error
}

// Status is what GET /v1/simulator reports.
type Status struct {
	IsRunning   bool  `json:"isRunning"`
	MessageRate int   `json:"messageRate"`
	Ticks       int64 `json:"ticks"`
	Chaos       Chaos `json:"chaos"`
}

// ChaosConfig carries the arguments of a chaos action.
type ChaosConfig struct {
	Enabled   bool    `json:"enabled"`
	LatencyMs float64 `json:"latencyMs"`
	Rate      float64 `json:"rate"`
}

// Command is one control request: start, stop, status or a chaos_* toggle.
type Command struct {
	Action string      `json:"action"`
	Config ChaosConfig `json:"config"`
}

// Runner drives a Simulator into a Sink on a fixed tick.
type Runner struct {
	sim      *Simulator
	sink     Sink
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	ticks  int64
}

func NewRunner(sim *Simulator, sink Sink, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Runner{sim: sim, sink: sink, interval: interval}
}

// Start launches the tick loop. It reports false when already running.
func (r *Runner) Start(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
	log.Info().Dur("interval", r.interval).Msg("simulator started")
	return true
}

// Stop halts the tick loop and waits for it to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Info().Msg("simulator stopped")
}

func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	running, ticks := r.cancel != nil, r.ticks
	r.mu.Unlock()
	return Status{IsRunning: running, MessageRate: MessageRate, Ticks: ticks, Chaos: r.sim.Chaos()}
}

func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := r.Tick(ctx); err != nil {
				log.Error().Err(err).Msg("simulator tick failed")
			}
		}
	}
}

// Tick emits one market-data message unless stale data is injected, and with
// 30% probability one order event followed by a position update.
func (r *Runner) Tick(ctx context.Context) error {
	r.mu.Lock()
	r.ticks++
	r.mu.Unlock()

	var errs []error
	if !r.sim.Chaos().StaleData {
		md := r.sim.GenerateMarketData()
		if err := r.sink.MarketData(ctx, &md); err != nil {
			errs = append(errs, err)
		}
	}
	if r.sim.Roll(orderProbability) {
		ev := r.sim.GenerateOrderEvent(r.sim.NextOrderID())
		if _, err := r.sink.Order(ctx, &ev); err != nil {
			errs = append(errs, err)
		}
		if err := r.sink.Position(r.sim.Exposure()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Apply executes a control command and returns a short confirmation.
func (r *Runner) Apply(ctx context.Context, cmd Command) (string, error) {
	switch cmd.Action {
	case "start":
		// the loop outlives the request that started it; Stop ends it
		r.Start(context.WithoutCancel(ctx))
		return "Simulator started", nil
	case "stop":
		r.Stop()
		return "Simulator stopped", nil
	case "status":
		return "ok", nil
	case "chaos_latency":
		if cmd.Config.Enabled && cmd.Config.LatencyMs <= 0 {
			return "", fmt.Errorf("%w: latencyMs must be positive", ErrInvalidCommand)
		}
		r.sim.SetLatencySpike(cmd.Config.Enabled, cmd.Config.LatencyMs)
		return "Latency chaos updated", nil
	case "chaos_stale":
		r.sim.SetStaleData(cmd.Config.Enabled)
		return "Stale data chaos updated", nil
	case "chaos_rejects":
		if cmd.Config.Enabled && (cmd.Config.Rate <= 0 || cmd.Config.Rate > 1) {
			return "", fmt.Errorf("%w: rate must be in (0, 1]", ErrInvalidCommand)
		}
		r.sim.SetRejects(cmd.Config.Enabled, cmd.Config.Rate)
		return "Reject chaos updated", nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, cmd.Action)
	}
}
