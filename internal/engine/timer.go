package engine

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// countdown is the per-session tick source. It is only read from the controller loop.
type countdown struct {
	ticker    clockwork.Ticker
	limit     int
	remaining int
}

func startCountdown(clock clockwork.Clock, limitSeconds int, period time.Duration) *countdown {
	return &countdown{
		ticker:    clock.NewTicker(period),
		limit:     limitSeconds,
		remaining: limitSeconds,
	}
}

// C returns the tick channel, or nil once stopped so a select never fires on it.
func (c *countdown) C() <-chan time.Time {
	if c == nil || c.ticker == nil {
		return nil
	}
	return c.ticker.Chan()
}

// tick decrements by one down to zero and reports whether time ran out.
func (c *countdown) tick() (int, bool) {
	if c.remaining > 0 {
		c.remaining--
	}
	return c.remaining, c.remaining == 0
}

func (c *countdown) elapsed() int {
	return c.limit - c.remaining
}

func (c *countdown) stop() {
	if c == nil || c.ticker == nil {
		return
	}
	c.ticker.Stop()
	c.ticker = nil
}
