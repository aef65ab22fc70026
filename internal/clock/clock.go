// Package clock delivers the one-second progress ticks that drive a story session.
package clock

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is one tick of session time.
const DefaultInterval = time.Second

// Tick is a single heartbeat. Seq starts at 1 for each Start.
type Tick struct {
	Seq int64
	At  time.Time
}

// Clock emits ticks on a buffered channel from a background goroutine.
// Ticks are dropped, not queued, when the consumer falls behind.
type Clock struct {
	mu       sync.Mutex
	interval time.Duration
	ticks    chan Tick
	cancel   context.CancelFunc
	done     chan struct{}
}

// New returns a stopped clock. A non-positive interval means DefaultInterval.
func New(interval time.Duration) *Clock {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Clock{
		interval: interval,
		ticks:    make(chan Tick, 1),
	}
}

// Ticks returns the receive side of the tick channel.
func (c *Clock) Ticks() <-chan Tick {
	return c.ticks
}

// Interval returns the tick period.
func (c *Clock) Interval() time.Duration {
	return c.interval
}

// Start begins ticking until ctx is done or Stop is called. Starting a running
// clock is a no-op.
func (c *Clock) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

// Running reports whether the ticker goroutine is active.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Stop halts the clock and waits for the goroutine to exit.
func (c *Clock) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Clock) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var seq int64
	for {
		select {
		case now := <-ticker.C:
			seq++
			select {
			case c.ticks <- Tick{Seq: seq, At: now}:
			default:
			}
		case <-ctx.Done():
			return
		}
	}
}
