package services

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"platewatch/internal/core/domain"
	"platewatch/internal/core/ports"
	"platewatch/internal/infrastructure/monitoring"
	"platewatch/internal/infrastructure/overlay"
	"platewatch/internal/infrastructure/signal"
	rtcinfra "platewatch/internal/infrastructure/webrtc"
	"platewatch/pkg/cache"
	"platewatch/pkg/config"

	"go.uber.org/zap"
)

// plateCropTTL bounds how long a recognized crop stays retrievable after
// the vehicle left the frame.
const plateCropTTL = 5 * time.Minute

// ViewSnapshot is the externally visible state of one camera view.
type ViewSnapshot struct {
	Camera       domain.CameraEndpoint `json:"camera"`
	SessionID    string                `json:"session_id,omitempty"`
	SessionState domain.SessionState   `json:"session_state"`
	UserError    string                `json:"user_error,omitempty"`
	StreamReady  bool                  `json:"stream_ready"`
	Detections   []domain.Detection    `json:"detections,omitempty"`
	LastPlate    string                `json:"last_plate,omitempty"`
	Vehicle      *domain.VehicleRecord `json:"vehicle,omitempty"`
}

// ViewDeps carries the process-wide collaborators every view shares.
type ViewDeps struct {
	Logger       *zap.Logger
	Metrics      *monitoring.PrometheusCollector
	Connectivity ports.ConnectivityService
	Plates       *cache.Cache
	Config       *config.Config
}

// CameraViewController owns everything one camera tile needs: the control
// event channel, the media session, the playback sink, and the overlay
// render loop. All mutable view state is replaced wholesale when the
// backend pushes an update; nothing is merged in place.
type CameraViewController struct {
	deps   ViewDeps
	logger *zap.SugaredLogger

	control *signal.Client
	stream  *signal.Client
	session *rtcinfra.Session
	sink    *overlay.FrameSink
	loop    *overlay.Loop

	unsubscribe func()

	mu         sync.Mutex
	endpoint   domain.CameraEndpoint
	batch      domain.DetectionBatch
	lastPlate  string
	vehicle    *domain.VehicleRecord
	backendErr string
	closed     bool
}

func NewCameraViewController(endpoint domain.CameraEndpoint, deps ViewDeps) *CameraViewController {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CameraViewController{
		deps:     deps,
		logger:   logger.Sugar().With("camera", endpoint.Name, "camera_id", endpoint.ID),
		endpoint: endpoint,
		sink:     overlay.NewFrameSink(),
	}
}

// Start opens the control channel, builds the media session for the
// endpoint's transport, and launches the overlay loop. The session starts
// negotiating as soon as its signaling path is up.
func (c *CameraViewController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrSessionClosed
	}
	endpoint := c.endpoint
	c.mu.Unlock()

	cfg := c.deps.Config

	negotiator, streamChannel := c.buildNegotiator(endpoint)
	c.stream = streamChannel
	controlSignals := negotiator == nil

	c.control = signal.NewClient(endpoint.ControlURL, cfg.Signaling.ControlRetryDelay,
		c.controlHandlers(controlSignals),
		c.logger.Desugar(),
		signal.WithChannelLabel("control"),
		signal.WithPingInterval(cfg.Signaling.PingInterval),
		signal.WithClientMetrics(c.deps.Metrics),
	)
	if controlSignals {
		negotiator = rtcinfra.NewSignalNegotiator(c.control, false)
	}

	c.session = rtcinfra.NewSession(endpoint, negotiator, c.sink, c.logger.Desugar(),
		rtcinfra.WithSTUNServers(cfg.WebRTC.STUNServers),
		rtcinfra.WithRetryDelay(cfg.Signaling.SessionRetryDelay),
		rtcinfra.WithSessionMetrics(c.deps.Metrics),
	)

	c.loop = overlay.NewLoop(
		overlay.NewTickerClock(cfg.Overlay.FrameRate),
		c.Batch,
		c.dimensions,
		overlay.NewRenderer(cfg.Overlay.Expiry),
		c.logger.Desugar(),
		c.deps.Metrics,
	)

	c.sink.OnReady(func() {
		width, height := c.sink.Resolution()
		c.logger.Infow("video metadata ready", "width", width, "height", height)
	})

	if c.deps.Connectivity != nil {
		c.unsubscribe = c.deps.Connectivity.Subscribe(c.onConnectivity)
	}

	c.control.Connect()
	if c.stream != nil {
		c.stream.Connect()
	}
	c.loop.Start()

	// Synchronous transports negotiate immediately; channel transports
	// wait for their channel's open callback instead.
	if !negotiator.Trickle() {
		go func() {
			if err := c.session.Start(ctx); err != nil {
				c.logger.Warnw("initial negotiation failed", "error", err)
			}
		}()
	}
	return nil
}

// buildNegotiator picks the negotiation transport from the endpoint's
// stream URL: http means synchronous offer/answer, ws a dedicated
// signaling channel, and empty (nil return) rides the control channel.
func (c *CameraViewController) buildNegotiator(endpoint domain.CameraEndpoint) (rtcinfra.Negotiator, *signal.Client) {
	cfg := c.deps.Config

	switch {
	case strings.HasPrefix(endpoint.StreamURL, "http://"), strings.HasPrefix(endpoint.StreamURL, "https://"):
		source := domain.NewStreamSource(endpoint.Name).WithCodec("h264").WithMaxWidth(1280)
		if endpoint.Audio {
			source = source.WithAudio()
		}
		return rtcinfra.NewHTTPNegotiator(endpoint.StreamURL, endpoint.Credentials, source.String()), nil

	case strings.HasPrefix(endpoint.StreamURL, "ws://"), strings.HasPrefix(endpoint.StreamURL, "wss://"):
		streamChannel := signal.NewClient(endpoint.StreamURL, cfg.Signaling.SessionRetryDelay,
			signal.Handlers{
				OnOpen:      c.onSignalingOpen,
				OnAnswer:    c.onAnswer,
				OnCandidate: c.onCandidate,
				OnError:     c.onBackendError,
			},
			c.logger.Desugar(),
			signal.WithChannelLabel("stream"),
			signal.WithPingInterval(cfg.Signaling.PingInterval),
			signal.WithClientMetrics(c.deps.Metrics),
		)
		return rtcinfra.NewSignalNegotiator(streamChannel, true), streamChannel

	default:
		return nil, nil
	}
}

func (c *CameraViewController) controlHandlers(controlSignals bool) signal.Handlers {
	handlers := signal.Handlers{
		OnDetection:   c.onDetection,
		OnPlateImage:  c.onPlateImage,
		OnVehicleInfo: c.onVehicleInfo,
		OnError:       c.onBackendError,
	}
	if controlSignals {
		// Negotiation rides this channel too.
		handlers.OnOpen = c.onSignalingOpen
		handlers.OnAnswer = c.onAnswer
		handlers.OnCandidate = c.onCandidate
	}
	return handlers
}

func (c *CameraViewController) onSignalingOpen() {
	err := c.session.Start(context.Background())
	if err != nil && err != domain.ErrNegotiationInFlight {
		c.logger.Warnw("negotiation start failed", "error", err)
	}
}

func (c *CameraViewController) onAnswer(sdp string) {
	if err := c.session.HandleAnswer(sdp); err != nil {
		c.logger.Warnw("answer rejected", "error", err)
	}
}

func (c *CameraViewController) onCandidate(candidate string) {
	if err := c.session.HandleCandidate(candidate); err != nil {
		c.logger.Warnw("candidate rejected", "error", err)
	}
}

// onDetection replaces the current batch wholesale. Stale boxes from a
// previous batch never survive into the next render.
func (c *CameraViewController) onDetection(batch domain.DetectionBatch) {
	c.mu.Lock()
	c.batch = batch
	if plate := batch.LastPlate(); plate != "" {
		c.lastPlate = plate
	}
	camera := c.endpoint.Name
	c.mu.Unlock()

	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordDetections(camera, batch)
	}
}

func (c *CameraViewController) onPlateImage(image string) {
	c.mu.Lock()
	id := c.endpoint.ID
	c.mu.Unlock()

	if c.deps.Plates != nil {
		c.deps.Plates.SetWithTTL(fmt.Sprintf("plate:%d", id), domain.PlateCrop{
			Image:      image,
			ReceivedAt: time.Now(),
		}, plateCropTTL)
	}
}

func (c *CameraViewController) onVehicleInfo(vehicle domain.VehicleRecord) {
	c.mu.Lock()
	c.vehicle = &vehicle
	c.mu.Unlock()
}

func (c *CameraViewController) onBackendError(message string) {
	c.logger.Warnw("backend reported error", "message", message)
	c.mu.Lock()
	c.backendErr = message
	c.mu.Unlock()
}

// onConnectivity redials the channels and restarts a failed session when
// the backend comes back. An unknown-to-connected transition is first
// contact, not a recovery, and triggers nothing.
func (c *CameraViewController) onConnectivity(event domain.ConnectivityEvent) {
	if !event.Recovered {
		return
	}
	c.logger.Infow("backend recovered, refreshing channels")

	c.control.Redial()
	if c.stream != nil {
		c.stream.Redial()
	}
	if c.session.State() == domain.SessionFailed {
		go func() {
			err := c.session.Start(context.Background())
			if err != nil && err != domain.ErrNegotiationInFlight {
				c.logger.Warnw("recovery restart failed", "error", err)
			}
		}()
	}
}

// Batch returns the current detection batch.
func (c *CameraViewController) Batch() domain.DetectionBatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batch
}

// Overlay returns a copy of the rendered overlay surface, or nil while
// nothing has been painted yet.
func (c *CameraViewController) Overlay() *image.RGBA {
	if c.loop == nil {
		return nil
	}
	return c.loop.Surface()
}

func (c *CameraViewController) dimensions() (int, int, bool) {
	if !c.sink.Ready() {
		return 0, 0, false
	}
	w, h := c.sink.Resolution()
	return w, h, true
}

// Rename updates the display name without touching the live session.
func (c *CameraViewController) Rename(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoint.Name = name
}

// Endpoint returns the endpoint currently served.
func (c *CameraViewController) Endpoint() domain.CameraEndpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// Snapshot reports the view's externally visible state.
func (c *CameraViewController) Snapshot() ViewSnapshot {
	c.mu.Lock()
	endpoint := c.endpoint
	batch := c.batch
	lastPlate := c.lastPlate
	vehicle := c.vehicle
	backendErr := c.backendErr
	c.mu.Unlock()

	snapshot := ViewSnapshot{
		Camera:      endpoint,
		Detections:  batch.Detections,
		LastPlate:   lastPlate,
		Vehicle:     vehicle,
		StreamReady: c.sink.FirstFrame(),
	}
	if c.session != nil {
		snapshot.SessionID = c.session.ID()
		snapshot.SessionState = c.session.State()
		snapshot.UserError = c.session.UserError()
	}
	if snapshot.UserError == "" {
		snapshot.UserError = backendErr
	}
	return snapshot
}

// Close tears the view down: connectivity subscription first so no
// recovery callback races the teardown, then the session (which owns its
// stream channel), then the control channel and the render loop.
func (c *CameraViewController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if c.session != nil {
		c.session.Close()
	}
	if c.control != nil {
		c.control.Close()
	}
	if c.loop != nil {
		c.loop.Stop()
	}
	c.logger.Infow("camera view closed")
}
