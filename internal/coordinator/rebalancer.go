package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/kazz187/taskcrew/pkg/panicerr"
)

const DefaultRebalanceInterval = 60 * time.Second

// Rebalancer runs the rebalancing pass on a fixed interval in its own
// goroutine until stopped.
type Rebalancer struct {
	coord    *Coordinator
	interval time.Duration
	onPass   func(Report)

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     *conc.WaitGroup
}

type RebalancerOption func(*Rebalancer)

// WithPassHook is called after every pass, mostly for tests and metrics.
func WithPassHook(fn func(Report)) RebalancerOption {
	return func(r *Rebalancer) {
		r.onPass = fn
	}
}

func NewRebalancer(coord *Coordinator, interval time.Duration, opts ...RebalancerOption) *Rebalancer {
	if interval <= 0 {
		interval = DefaultRebalanceInterval
	}
	r := &Rebalancer{
		coord:    coord,
		interval: interval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the loop. It returns an error when already running.
func (r *Rebalancer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errors.New("rebalancer already running")
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg = conc.NewWaitGroup()
	r.wg.Go(func() { r.loop(ctx) })
	slog.Info("rebalancer started", "interval", r.interval)
	return nil
}

// Stop signals the loop to exit and waits until a pass in flight finishes.
// Stopping a rebalancer that is not running is a no-op.
func (r *Rebalancer) Stop() {
	r.mu.Lock()
	cancel, wg := r.cancel, r.wg
	r.cancel, r.wg = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	wg.Wait()
	slog.Info("rebalancer stopped")
}

func (r *Rebalancer) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runPass()
		}
	}
}

func (r *Rebalancer) runPass() {
	var report Report
	err := panicerr.Safe(func() error {
		report = r.coord.Rebalance()
		return nil
	})()
	if err != nil {
		slog.Error("rebalancing pass panicked", "error", err)
		return
	}
	if len(report.Moves) > 0 || report.Failures > 0 {
		slog.Info("rebalancing pass", "moves", len(report.Moves), "failures", report.Failures)
	}
	if r.onPass != nil {
		r.onPass(report)
	}
}
