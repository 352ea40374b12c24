package relayauth

import (
	"context"
	"sync"
	"time"
)

// Countdown ticks down to a deadline on its own goroutine, for resend
// cooldowns and code-expiry labels. Stop it when the screen goes away.
type Countdown struct {
	deadline time.Time
	now      func() time.Time
	interval time.Duration
	onTick   func(remaining time.Duration)

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// StartCountdown begins ticking immediately. onTick receives the remaining
// time on every tick and a final 0 when the deadline passes; it is not
// called after Stop or ctx cancellation. A nil clock means time.Now.
func StartCountdown(ctx context.Context, deadline time.Time, interval time.Duration, now func() time.Time, onTick func(time.Duration)) *Countdown {
	if now == nil {
		now = time.Now
	}
	if interval <= 0 {
		interval = time.Second
	}
	c := &Countdown{
		deadline: deadline,
		now:      now,
		interval: interval,
		onTick:   onTick,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.run(ctx)
	return c
}

func (c *Countdown) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		remaining := c.Remaining()
		if c.onTick != nil {
			c.onTick(remaining)
		}
		if remaining == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
		}
	}
}

// Remaining returns the time left, never negative.
func (c *Countdown) Remaining() time.Duration {
	d := c.deadline.Sub(c.now())
	if d < 0 {
		return 0
	}
	return d
}

// Stop ends the countdown and waits for its goroutine. Safe to call twice.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

// Done is closed once the goroutine exits.
func (c *Countdown) Done() <-chan struct{} { return c.done }
