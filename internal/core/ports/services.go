package ports

import (
	"context"
	"time"

	"platewatch/internal/core/domain"

	"github.com/pion/rtp"
)

// ConnectivityService is the process-wide backend health monitor. One
// instance exists per process; it is passed explicitly to every consumer.
type ConnectivityService interface {
	// State returns the current cached connectivity state.
	State() domain.ConnectivityState

	// Subscribe registers a listener and immediately delivers the cached
	// state. Listeners are then notified exactly once per actual state
	// change. The returned func unregisters the listener; registration and
	// deregistration are safe at any point in a component's lifecycle.
	Subscribe(fn func(domain.ConnectivityEvent)) (unsubscribe func())

	// CheckNow performs one immediate probe and returns the result without
	// waiting for the poll timer.
	CheckNow(ctx context.Context) bool
}

// VideoSink is the playback side of a media session: it consumes the
// remote track's packets and knows the source's native dimensions once
// they are available.
type VideoSink interface {
	// WriteRTP consumes one packet from the bound remote track.
	WriteRTP(pkt *rtp.Packet) error

	// Ready reports whether the source metadata (native resolution) is
	// known yet.
	Ready() bool

	// Resolution returns the native pixel dimensions; only meaningful when
	// Ready.
	Resolution() (width, height int)

	// OnReady registers a callback fired once when metadata becomes
	// available, so playback start can race safely with element readiness.
	OnReady(fn func())

	// FirstFrame reports whether at least one complete frame arrived.
	FirstFrame() bool

	// Detach disconnects the sink from its source and resets it.
	Detach()
}

// FrameClock paces the overlay render loop: one render per tick,
// cooperative, stoppable. The production clock follows the configured
// display rate; tests substitute a manual clock.
type FrameClock interface {
	C() <-chan time.Time
	Stop()
}
