package overlay

import (
	"image"
	"sync"
	"time"

	"platewatch/internal/core/domain"
	"platewatch/internal/core/ports"
	"platewatch/internal/infrastructure/monitoring"

	"go.uber.org/zap"
)

// BatchSource yields the most recent detection batch. The loop re-reads it
// every tick instead of closing over state captured at start time.
type BatchSource func() domain.DetectionBatch

// DimensionSource yields the video's native pixel dimensions; ok is false
// while they are unknown, in which case the tick is skipped.
type DimensionSource func() (width, height int, ok bool)

// Loop drives one overlay per view: a single scheduled render task that
// repaints the surface once per frame-clock tick and is canceled
// deterministically when the view goes away. No loop instance outlives its
// owner.
type Loop struct {
	clock    ports.FrameClock
	source   BatchSource
	dims     DimensionSource
	renderer *Renderer
	logger   *zap.SugaredLogger
	metrics  *monitoring.PrometheusCollector

	mu      sync.Mutex
	surface *image.RGBA
	started bool
	done    chan struct{}
}

func NewLoop(clock ports.FrameClock, source BatchSource, dims DimensionSource, renderer *Renderer, logger *zap.Logger, metrics *monitoring.PrometheusCollector) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		clock:    clock,
		source:   source,
		dims:     dims,
		renderer: renderer,
		logger:   logger.Sugar(),
		metrics:  metrics,
	}
}

// Start launches the render goroutine. Starting twice is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	go l.run(done)
}

func (l *Loop) run(done chan struct{}) {
	for {
		select {
		case now := <-l.clock.C():
			l.renderOnce(now)
		case <-done:
			return
		}
	}
}

func (l *Loop) renderOnce(now time.Time) {
	width, height, ok := l.dims()
	if !ok {
		// Native resolution unknown; painting is skipped for this frame.
		return
	}

	l.mu.Lock()
	if l.surface == nil || l.surface.Bounds().Dx() != width || l.surface.Bounds().Dy() != height {
		l.surface = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	surface := l.surface
	l.mu.Unlock()

	batch := l.source()
	painted := l.renderer.Render(surface, batch, now)

	if l.metrics != nil {
		l.metrics.RecordFrameRendered()
		if !painted && !batch.ReceivedAt.IsZero() {
			l.metrics.RecordStaleBatch()
		}
	}
}

// Surface returns a copy of the current overlay surface, or nil when
// nothing has been painted yet.
func (l *Loop) Surface() *image.RGBA {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.surface == nil {
		return nil
	}
	out := image.NewRGBA(l.surface.Bounds())
	copy(out.Pix, l.surface.Pix)
	return out
}

// Stop cancels the render task and the clock behind it.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return
	}
	l.started = false
	close(l.done)
	l.mu.Unlock()

	l.clock.Stop()
}
