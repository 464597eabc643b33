package webrtc

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"platewatch/internal/core/domain"
	"platewatch/internal/core/ports"
	"platewatch/internal/infrastructure/monitoring"
	apperrors "platewatch/pkg/errors"
	"platewatch/pkg/retry"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const (
	defaultRetryDelay = 4 * time.Second
	pliInterval       = 3 * time.Second
)

// SessionOption configures a Session.
type SessionOption func(*Session)

func WithSTUNServers(urls []string) SessionOption {
	return func(s *Session) { s.stunServers = urls }
}

func WithRetryDelay(d time.Duration) SessionOption {
	return func(s *Session) { s.retryDelay = d }
}

func WithSessionMetrics(collector *monitoring.PrometheusCollector) SessionOption {
	return func(s *Session) { s.metrics = collector }
}

// WithStateListener registers fn to observe every state transition. fn
// runs outside the session lock.
func WithStateListener(fn func(from, to domain.SessionState)) SessionOption {
	return func(s *Session) { s.stateListener = fn }
}

// Session owns the media connection for one camera endpoint: exactly one
// peer connection attempt is live at a time, remote candidates arriving
// before the answer are buffered and replayed, and a failed attempt is
// torn down and retried after a fixed delay for as long as the session
// lives. Close is terminal; nothing fires afterwards.
type Session struct {
	id         string
	endpoint   domain.CameraEndpoint
	negotiator Negotiator
	sink       ports.VideoSink
	logger     *zap.SugaredLogger
	metrics    *monitoring.PrometheusCollector

	stunServers   []string
	retryDelay    time.Duration
	stateListener func(from, to domain.SessionState)

	mu          sync.Mutex
	pc          *webrtc.PeerConnection
	state       domain.SessionState
	userErr     string
	remoteSet   bool
	trackBound  bool
	pending     []string
	closed      bool
	attemptDone chan struct{}

	restart *retry.Task
}

func NewSession(endpoint domain.CameraEndpoint, negotiator Negotiator, sink ports.VideoSink, logger *zap.Logger, opts ...SessionOption) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	s := &Session{
		id:         id,
		endpoint:   endpoint,
		negotiator: negotiator,
		sink:       sink,
		logger:     logger.Sugar().With("session_id", id, "camera", endpoint.Name, "camera_id", endpoint.ID),
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.restart = retry.NewTask(s.retryDelay, s.retryAttempt)
	return s
}

// Start launches a negotiation attempt. The session must be idle or
// failed; a second Start while negotiating is rejected so concurrent
// attempts never race on the peer connection.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if s.state == domain.SessionNegotiating || s.state == domain.SessionConnected {
		s.mu.Unlock()
		return domain.ErrNegotiationInFlight
	}
	s.remoteSet = false
	s.trackBound = false
	s.pending = nil
	s.userErr = ""
	s.attemptDone = make(chan struct{})
	attemptDone := s.attemptDone
	s.mu.Unlock()

	s.setState(domain.SessionNegotiating)

	pc, err := s.buildPeerConnection(attemptDone)
	if err != nil {
		s.fail("Unable to start the video session", err)
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		pc.Close()
		return domain.ErrSessionClosed
	}
	s.pc = pc
	s.mu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		s.fail("Unable to start the video session", apperrors.NewNegotiation("create offer", err))
		return err
	}

	if s.negotiator.Trickle() {
		if err := pc.SetLocalDescription(offer); err != nil {
			s.fail("Unable to start the video session", apperrors.NewNegotiation("set local description", err))
			return err
		}
	} else {
		// Non-trickle transports ship a complete offer: wait for the
		// gatherer before reading the local description back.
		gathered := webrtc.GatheringCompletePromise(pc)
		if err := pc.SetLocalDescription(offer); err != nil {
			s.fail("Unable to start the video session", apperrors.NewNegotiation("set local description", err))
			return err
		}
		select {
		case <-gathered:
		case <-ctx.Done():
			s.fail("Unable to start the video session", apperrors.NewTimeout("ice gathering", ctx.Err()))
			return ctx.Err()
		}
	}

	answer, err := s.negotiator.Negotiate(ctx, pc.LocalDescription().SDP)
	if err != nil {
		s.fail("Unable to reach the camera", err)
		return err
	}
	if answer != "" {
		return s.HandleAnswer(answer)
	}
	return nil
}

func (s *Session) buildPeerConnection(attemptDone chan struct{}) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(s.stunServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: s.stunServers}}
	}

	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return nil, apperrors.NewNegotiation("create peer connection", err)
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		return nil, apperrors.NewNegotiation("add video transceiver", err)
	}
	if s.endpoint.Audio {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			pc.Close()
			return nil, apperrors.NewNegotiation("add audio transceiver", err)
		}
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if err := s.negotiator.SendCandidate(cand.ToJSON().Candidate); err != nil {
			s.logger.Warnw("cannot forward local candidate", "error", err)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.handleTrack(pc, track, attemptDone)
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		s.handleICEState(state)
	})

	return pc, nil
}

// handleTrack binds the first video track and ignores everything after it:
// rebinding mid-session would tear the playback surface out from under the
// render loop.
func (s *Session) handleTrack(pc *webrtc.PeerConnection, track *webrtc.TrackRemote, attemptDone chan struct{}) {
	if track.Kind() != webrtc.RTPCodecTypeVideo {
		s.logger.Debugw("ignoring non-video track", "kind", track.Kind().String())
		return
	}

	s.mu.Lock()
	if s.trackBound || s.closed {
		s.mu.Unlock()
		return
	}
	s.trackBound = true
	s.mu.Unlock()

	s.logger.Infow("video track bound", "codec", track.Codec().MimeType, "ssrc", track.SSRC())

	go s.readTrack(track, attemptDone)
	go s.keyframeLoop(pc, uint32(track.SSRC()), attemptDone)
}

func (s *Session) readTrack(track *webrtc.TrackRemote, attemptDone chan struct{}) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if err != io.EOF {
				s.logger.Debugw("track read ended", "error", err)
			}
			return
		}
		select {
		case <-attemptDone:
			return
		default:
		}
		if err := s.sink.WriteRTP(pkt); err != nil {
			s.logger.Warnw("sink write failed", "error", err)
			return
		}
	}
}

// keyframeLoop periodically asks the sender for a fresh keyframe so a
// viewer joining mid-stream gets a decodable picture promptly.
func (s *Session) keyframeLoop(pc *webrtc.PeerConnection, ssrc uint32, attemptDone chan struct{}) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-attemptDone:
			return
		case <-ticker.C:
			err := pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}})
			if err != nil {
				return
			}
		}
	}
}

func (s *Session) handleICEState(state webrtc.ICEConnectionState) {
	switch state {
	case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateDisconnected:
		s.fail("Camera stream lost. Reconnecting...",
			apperrors.NewTerminalMedia("Camera stream lost. Reconnecting...",
				fmt.Errorf("ice state %s", state)))
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		s.mu.Lock()
		s.userErr = ""
		s.mu.Unlock()
	}
}

// HandleAnswer applies the remote description and replays any candidates
// that arrived ahead of it. On a closed session it is a silent no-op.
func (s *Session) HandleAnswer(sdp string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	pc := s.pc
	s.mu.Unlock()

	if pc == nil {
		return domain.ErrNoRemoteDescription
	}

	// An answer without a video section can never deliver the stream;
	// applying it would leave the session negotiating forever.
	if !strings.Contains(sdp, "m=video") {
		s.fail("The camera returned no video stream",
			apperrors.NewTerminalMedia("The camera returned no video stream", domain.ErrNoVideoTrack))
		return domain.ErrNoVideoTrack
	}

	err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
	if err != nil {
		wrapped := apperrors.NewNegotiation("set remote description", err)
		s.fail("Unable to reach the camera", wrapped)
		return wrapped
	}

	s.mu.Lock()
	s.remoteSet = true
	buffered := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, cand := range buffered {
		if err := pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: cand}); err != nil {
			// A bad buffered candidate does not sink the session.
			s.logger.Warnw("discarding buffered candidate", "error", err)
		}
	}

	s.setState(domain.SessionConnected)
	return nil
}

// HandleCandidate applies one remote candidate, buffering it when the
// answer has not landed yet. A malformed candidate is logged and dropped.
func (s *Session) HandleCandidate(candidate string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if !s.remoteSet {
		s.pending = append(s.pending, candidate)
		s.mu.Unlock()
		return nil
	}
	pc := s.pc
	s.mu.Unlock()

	if pc == nil {
		return nil
	}
	if err := pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate}); err != nil {
		s.logger.Warnw("discarding candidate", "error", err)
	}
	return nil
}

// fail tears the current attempt down, surfaces a viewer-facing message,
// and arms the fixed-delay retry. A closed session never transitions.
func (s *Session) fail(userMessage string, cause error) {
	s.mu.Lock()
	if s.closed || s.state == domain.SessionFailed {
		s.mu.Unlock()
		return
	}
	s.userErr = userMessage
	pc := s.pc
	s.pc = nil
	if s.attemptDone != nil {
		close(s.attemptDone)
		s.attemptDone = nil
	}
	s.mu.Unlock()

	s.logger.Warnw("session attempt failed", "error", cause)
	s.setState(domain.SessionFailed)

	if pc != nil {
		pc.Close()
	}
	s.sink.Detach()

	if s.restart.Schedule() {
		if s.metrics != nil {
			s.metrics.RecordSessionRetry()
		}
	}
}

func (s *Session) retryAttempt() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.logger.Infow("retrying session")
	if err := s.Start(context.Background()); err != nil {
		s.logger.Warnw("session retry failed", "error", err)
	}
}

func (s *Session) setState(to domain.SessionState) {
	s.mu.Lock()
	from := s.state
	if from == to || s.closed && to != domain.SessionClosed {
		s.mu.Unlock()
		return
	}
	s.state = to
	listener := s.stateListener
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordSessionState(from, to)
	}
	if listener != nil {
		listener(from, to)
	}
}

// State returns the current lifecycle state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == "" {
		return domain.SessionIdle
	}
	return s.state
}

// UserError returns the viewer-facing error text, empty when healthy.
func (s *Session) UserError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userErr
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Endpoint returns the immutable endpoint this session serves.
func (s *Session) Endpoint() domain.CameraEndpoint {
	return s.endpoint
}

// Close tears the session down for good: the retry is stopped before the
// transports, so nothing can resurrect the attempt mid-teardown.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pc := s.pc
	s.pc = nil
	if s.attemptDone != nil {
		close(s.attemptDone)
		s.attemptDone = nil
	}
	s.mu.Unlock()

	s.restart.Stop()
	s.negotiator.Close()

	var err error
	if pc != nil {
		err = pc.Close()
	}
	s.sink.Detach()

	s.setState(domain.SessionClosed)
	return err
}
