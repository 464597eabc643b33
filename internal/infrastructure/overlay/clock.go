package overlay

import "time"

// TickerClock is the production frame clock: a fixed tick at the display
// rate. It implements ports.FrameClock.
type TickerClock struct {
	ticker *time.Ticker
}

// NewTickerClock ticks framesPerSecond times a second.
func NewTickerClock(framesPerSecond int) *TickerClock {
	if framesPerSecond <= 0 {
		framesPerSecond = 30
	}
	return &TickerClock{ticker: time.NewTicker(time.Second / time.Duration(framesPerSecond))}
}

func (c *TickerClock) C() <-chan time.Time {
	return c.ticker.C
}

func (c *TickerClock) Stop() {
	c.ticker.Stop()
}
