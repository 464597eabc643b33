package overlay

import (
	"sync"
	"testing"
	"time"

	"platewatch/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// manualClock lets the test drive frame ticks by hand.
type manualClock struct {
	ch      chan time.Time
	stopped bool
	mu      sync.Mutex
}

func newManualClock() *manualClock {
	return &manualClock{ch: make(chan time.Time)}
}

func (c *manualClock) C() <-chan time.Time { return c.ch }

func (c *manualClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

func (c *manualClock) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// tick blocks until the loop consumes the frame or the deadline passes.
func (c *manualClock) tick(t *testing.T, now time.Time) {
	t.Helper()
	select {
	case c.ch <- now:
	case <-time.After(time.Second):
		t.Fatal("render loop did not consume the tick")
	}
}

type loopFixture struct {
	clock *manualClock
	loop  *Loop

	mu    sync.Mutex
	batch domain.DetectionBatch
	w, h  int
	known bool
}

func newLoopFixture(expiry time.Duration) *loopFixture {
	f := &loopFixture{clock: newManualClock()}
	source := func() domain.DetectionBatch {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.batch
	}
	dims := func() (int, int, bool) {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.w, f.h, f.known
	}
	f.loop = NewLoop(f.clock, source, dims, NewRenderer(expiry), zap.NewNop(), nil)
	return f
}

func (f *loopFixture) setDims(w, h int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.w, f.h, f.known = w, h, true
}

func (f *loopFixture) setBatch(b domain.DetectionBatch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batch = b
}

// eventually polls cond until it holds; tick delivery only guarantees the
// loop accepted the frame, not that the repaint finished.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond, msg)
}

func TestLoop_SkipsWhileDimensionsUnknown(t *testing.T) {
	f := newLoopFixture(time.Second)
	f.loop.Start()
	defer f.loop.Stop()

	f.clock.tick(t, time.Now())
	f.clock.tick(t, time.Now())
	assert.Nil(t, f.loop.Surface(), "no surface before the native resolution is known")
}

func TestLoop_RendersFreshBatchAndClearsExpired(t *testing.T) {
	f := newLoopFixture(time.Second)
	f.setDims(640, 480)
	arrival := time.Now()
	f.setBatch(domain.DetectionBatch{
		Detections: []domain.Detection{
			{Class: "car", Confidence: 0.8, Box: domain.BoundingBox{X: 10, Y: 50, W: 80, H: 40}},
		},
		ReceivedAt: arrival,
	})

	f.loop.Start()
	defer f.loop.Stop()

	f.clock.tick(t, arrival.Add(500*time.Millisecond))
	eventually(t, func() bool {
		s := f.loop.Surface()
		return s != nil && !surfaceEmpty(s)
	}, "batch within its expiry window must be painted")

	f.clock.tick(t, arrival.Add(1500*time.Millisecond))
	eventually(t, func() bool {
		return surfaceEmpty(f.loop.Surface())
	}, "batch past its expiry window must leave a cleared surface")
}

func TestLoop_ResizesSurfaceWhenDimensionsChange(t *testing.T) {
	f := newLoopFixture(time.Second)
	f.setDims(640, 480)
	f.loop.Start()
	defer f.loop.Stop()

	f.clock.tick(t, time.Now())
	eventually(t, func() bool {
		s := f.loop.Surface()
		return s != nil && s.Bounds().Dx() == 640
	}, "surface sized to the initial resolution")

	f.setDims(1280, 720)
	f.clock.tick(t, time.Now())
	eventually(t, func() bool {
		s := f.loop.Surface()
		return s != nil && s.Bounds().Dx() == 1280 && s.Bounds().Dy() == 720
	}, "surface resized to the new resolution")
}

func TestLoop_StopHaltsRenderingAndStopsClock(t *testing.T) {
	f := newLoopFixture(time.Second)
	f.setDims(640, 480)
	f.loop.Start()
	f.loop.Stop()

	assert.True(t, f.clock.Stopped())
	select {
	case f.clock.ch <- time.Now():
		t.Fatal("stopped loop must not consume ticks")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoop_StartTwiceIsNoop(t *testing.T) {
	f := newLoopFixture(time.Second)
	f.setDims(640, 480)
	f.loop.Start()
	f.loop.Start()
	defer f.loop.Stop()

	// A single goroutine serves the ticks; a second Start must not have
	// spawned a competitor that races on the surface.
	for i := 0; i < 3; i++ {
		f.clock.tick(t, time.Now())
	}
	eventually(t, func() bool { return f.loop.Surface() != nil }, "ticks still rendered")
}
