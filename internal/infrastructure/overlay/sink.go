package overlay

import (
	"sync"

	"github.com/pion/rtp"
)

// FrameSink is the playback side of a media session. It consumes the
// remote track's RTP packets, tracks frame boundaries via the marker bit,
// and learns the source's native resolution from in-band H.264 parameter
// sets. A decoder can also push corrected dimensions via SetResolution.
// It implements ports.VideoSink.
type FrameSink struct {
	mu         sync.Mutex
	width      int
	height     int
	ready      bool
	firstFrame bool
	packets    uint64
	onReady    []func()
}

func NewFrameSink() *FrameSink {
	return &FrameSink{}
}

// WriteRTP consumes one packet. The end-of-frame marker flips the
// first-frame flag; while the resolution is unknown each payload is
// scanned for an SPS carrying the picture dimensions.
func (s *FrameSink) WriteRTP(pkt *rtp.Packet) error {
	s.mu.Lock()
	s.packets++
	if pkt.Marker {
		s.firstFrame = true
	}
	ready := s.ready
	s.mu.Unlock()

	if !ready {
		if width, height, ok := spsDimensions(pkt.Payload); ok {
			s.SetResolution(width, height)
		}
	}
	return nil
}

// SetResolution records the source's native dimensions and fires any
// registered readiness callbacks exactly once.
func (s *FrameSink) SetResolution(width, height int) {
	s.mu.Lock()
	if s.ready {
		s.width, s.height = width, height
		s.mu.Unlock()
		return
	}
	s.width, s.height = width, height
	s.ready = true
	callbacks := s.onReady
	s.onReady = nil
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

func (s *FrameSink) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *FrameSink) Resolution() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// OnReady registers fn to run once metadata is known. When it already is,
// fn runs immediately, so playback start can be attempted both eagerly and
// on readiness without racing.
func (s *FrameSink) OnReady(fn func()) {
	s.mu.Lock()
	if s.ready {
		s.mu.Unlock()
		fn()
		return
	}
	s.onReady = append(s.onReady, fn)
	s.mu.Unlock()
}

func (s *FrameSink) FirstFrame() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstFrame
}

// Packets returns how many packets the sink consumed.
func (s *FrameSink) Packets() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packets
}

// Detach resets the sink to its unbound state.
func (s *FrameSink) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = 0, 0
	s.ready = false
	s.firstFrame = false
	s.packets = 0
	s.onReady = nil
}
