// Package coordinator serialises refresh passes: at most one runs at a time,
// passes are spaced by a minimum gap, and bursts of requests collapse into a
// single deferred pass.
package coordinator

import (
	"context"
	"log"
	"sync"
	"time"

	"backoffice-sync/metrics"
)

type State int

const (
	Idle State = iota
	InFlight
)

func (s State) String() string {
	if s == InFlight {
		return "in-flight"
	}
	return "idle"
}

// RunFunc performs one refresh pass.
type RunFunc func(ctx context.Context) error

type Coordinator struct {
	mu       sync.Mutex
	state    State
	lastDone time.Time
	timer    *time.Timer
	closed   bool

	run      RunFunc
	debounce time.Duration
	minGap   time.Duration
	now      func() time.Time

	// base is the context deferred passes run under; Close cancels it.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(run RunFunc, debounce, minGap time.Duration) *Coordinator {
	base, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		run:      run,
		debounce: debounce,
		minGap:   minGap,
		now:      time.Now,
		base:     base,
		cancel:   cancel,
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RequestRefresh runs a pass now when the coordinator is idle and the last
// pass finished at least minGap ago. Otherwise it makes sure one pass is
// scheduled for later and returns nil immediately.
func (c *Coordinator) RequestRefresh(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.state == InFlight {
		c.scheduleLocked(c.debounce)
		c.mu.Unlock()
		metrics.RecordRefresh("deferred")
		return nil
	}
	if !c.lastDone.IsZero() {
		if wait := c.minGap - c.now().Sub(c.lastDone); wait > 0 {
			c.scheduleLocked(wait)
			c.mu.Unlock()
			metrics.RecordRefresh("deferred")
			return nil
		}
	}
	c.state = InFlight
	c.stopTimerLocked()
	c.mu.Unlock()

	err := c.run(ctx)

	c.mu.Lock()
	c.state = Idle
	c.lastDone = c.now()
	c.mu.Unlock()

	if err != nil {
		metrics.RecordRefresh("failed")
		log.Printf("[coordinator] refresh failed: %v", err)
		return err
	}
	metrics.RecordRefresh("ran")
	return nil
}

// scheduleLocked arms the single retry timer unless one is already pending.
func (c *Coordinator) scheduleLocked(d time.Duration) {
	if c.timer != nil {
		return
	}
	c.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		defer c.wg.Done()
		c.mu.Lock()
		if c.timer == t {
			c.timer = nil
		}
		c.mu.Unlock()
		_ = c.RequestRefresh(c.base)
	})
	c.timer = t
}

func (c *Coordinator) stopTimerLocked() {
	if c.timer != nil && c.timer.Stop() {
		c.wg.Done()
	}
	c.timer = nil
}

// RunPeriodic requests a refresh every interval until ctx is done.
func (c *Coordinator) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.RequestRefresh(ctx)
		}
	}
}

// Close cancels any scheduled pass and waits for a running deferred pass.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopTimerLocked()
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}
