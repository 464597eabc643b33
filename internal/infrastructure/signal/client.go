package signal

import (
	"sync"
	"time"

	"platewatch/internal/core/domain"
	"platewatch/internal/infrastructure/monitoring"
	"platewatch/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers receives decoded frames from a Client. Unset handlers mean the
// corresponding kind is dropped with a debug log. Ping/Pong never reach
// handlers; the client answers pings itself.
type Handlers struct {
	OnOpen          func()
	OnOffer         func(sdp string)
	OnAnswer        func(sdp string)
	OnCandidate     func(candidate string)
	OnDetection     func(batch domain.DetectionBatch)
	OnPlateImage    func(image string)
	OnVehicleInfo   func(vehicle domain.VehicleRecord)
	OnCamerasUpdate func(cameras []domain.CameraEndpoint)
	OnError         func(message string)
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

func WithPingInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.pingInterval = d }
}

func WithChannelLabel(label string) ClientOption {
	return func(c *Client) { c.channel = label }
}

func WithClientMetrics(collector *monitoring.PrometheusCollector) ClientOption {
	return func(c *Client) { c.metrics = collector }
}

// Client is one duplex signaling channel over a WebSocket. It keeps the
// channel alive with application-level pings, drops malformed frames
// without surfacing errors, and redials with a fixed per-call-site delay
// after any abnormal close or connection error. Teardown cancels the
// pending retry before closing the socket so no reconnect fires after
// disposal.
type Client struct {
	url          string
	channel      string
	pingInterval time.Duration
	handlers     Handlers
	logger       *zap.SugaredLogger
	metrics      *monitoring.PrometheusCollector

	mu        sync.Mutex
	conn      *websocket.Conn
	closed    bool
	reconnect *retry.Task

	// gorilla/websocket allows a single concurrent writer per connection;
	// pings, outbound messages and the closing handshake all go through
	// write.
	writeMu sync.Mutex
}

// NewClient builds a client for url that redials after retryDelay. Call
// Connect to open the channel.
func NewClient(url string, retryDelay time.Duration, handlers Handlers, logger *zap.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		url:          url,
		channel:      "control",
		pingInterval: 10 * time.Second,
		handlers:     handlers,
		logger:       logger.Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.reconnect = retry.NewTask(retryDelay, c.dial)
	return c
}

// Connect opens the channel; the first dial happens on the calling
// goroutine's schedule but never blocks it.
func (c *Client) Connect() {
	go c.dial()
}

func (c *Client) dial() {
	c.mu.Lock()
	if c.closed || c.conn != nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		c.logger.Warnw("signaling dial failed", "channel", c.channel, "url", c.url, "error", err)
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.logger.Infow("signaling channel open", "channel", c.channel, "url", c.url)

	done := make(chan struct{})
	go c.pingLoop(conn, done)
	go c.readLoop(conn, done)

	if c.handlers.OnOpen != nil {
		c.handlers.OnOpen()
	}
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	msg, err := Decode(data, time.Now())
	if err != nil {
		// Malformed or unknown frames are discarded without surfacing an
		// error to the owner.
		c.logger.Debugw("dropping signaling frame", "channel", c.channel, "error", err)
		if c.metrics != nil {
			c.metrics.RecordDroppedFrame()
		}
		return
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	switch msg.Kind {
	case KindPing:
		// Answer immediately so the peer's liveness check passes.
		c.Send(Message{Kind: KindPong})
	case KindPong:
		// Keepalive reply, nothing to do.
	case KindOffer:
		c.deliverString(c.handlers.OnOffer, msg.SDP, msg.Kind)
	case KindAnswer:
		c.deliverString(c.handlers.OnAnswer, msg.SDP, msg.Kind)
	case KindCandidate:
		c.deliverString(c.handlers.OnCandidate, msg.Candidate, msg.Kind)
	case KindError:
		c.deliverString(c.handlers.OnError, msg.ErrorText, msg.Kind)
	case KindDetection:
		if c.handlers.OnDetection != nil {
			c.handlers.OnDetection(msg.Batch)
		}
	case KindPlateImage:
		if c.handlers.OnPlateImage != nil {
			c.handlers.OnPlateImage(msg.PlateImage)
		}
	case KindVehicleInfo:
		if c.handlers.OnVehicleInfo != nil {
			c.handlers.OnVehicleInfo(*msg.Vehicle)
		}
	case KindCamerasUpdate:
		if c.handlers.OnCamerasUpdate != nil {
			c.handlers.OnCamerasUpdate(msg.Cameras)
		}
	}
}

func (c *Client) deliverString(fn func(string), value string, kind Kind) {
	if fn == nil {
		c.logger.Debugw("no handler for signaling frame", "channel", c.channel, "kind", kind)
		return
	}
	fn(value)
}

func (c *Client) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			open := c.conn == conn && !c.closed
			c.mu.Unlock()
			if !open {
				return
			}
			if err := c.write(conn, websocket.TextMessage, []byte("ping")); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (c *Client) handleDisconnect(conn *websocket.Conn, err error) {
	conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.logger.Infow("signaling channel closed", "channel", c.channel)
		return
	}

	c.logger.Warnw("signaling channel lost", "channel", c.channel, "error", err)
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	if c.reconnect.Schedule() {
		if c.metrics != nil {
			c.metrics.RecordSignalReconnect(c.channel)
		}
	}
}

// Send writes one message to the channel. While the channel is merely not
// open yet the message is dropped with a log; buffering is deliberately
// not provided. A closed channel reports domain.ErrChannelClosed.
func (c *Client) Send(msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		c.logger.Warnw("cannot encode signaling message", "channel", c.channel, "error", err)
		return err
	}

	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return domain.ErrChannelClosed
	}
	if conn == nil {
		c.logger.Debugw("dropping outbound message, channel not open", "channel", c.channel, "kind", msg.Kind)
		return nil
	}

	if err := c.write(conn, websocket.TextMessage, data); err != nil {
		c.logger.Warnw("signaling write failed", "channel", c.channel, "error", err)
		return err
	}
	return nil
}

func (c *Client) write(conn *websocket.Conn, messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(messageType, data)
}

// Open reports whether the channel currently has a live connection.
func (c *Client) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Redial drops the current connection so the normal reconnect path brings
// up a fresh one. Used when backend connectivity recovers and the channel
// state may be stale.
func (c *Client) Redial() {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}
	if conn != nil {
		// The read loop observes the error and schedules the reconnect.
		conn.Close()
		return
	}
	c.reconnect.ScheduleAfter(0)
}

// Close tears the channel down for good: the pending retry is cancelled
// before the socket closes, so no reconnect can fire after disposal.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.reconnect.Stop()

	if conn != nil {
		c.write(conn, websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
}
