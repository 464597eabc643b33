package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"platewatch/internal/core/domain"
	"platewatch/internal/infrastructure/monitoring"

	"go.uber.org/zap"
)

// statusResponse is the health endpoint's JSON body.
type statusResponse struct {
	Success     bool   `json:"success"`
	BackendType string `json:"backend_type,omitempty"`
}

// Option customizes a ConnectionMonitor.
type Option func(*ConnectionMonitor)

func WithInterval(d time.Duration) Option {
	return func(m *ConnectionMonitor) { m.interval = d }
}

func WithTimeout(d time.Duration) Option {
	return func(m *ConnectionMonitor) { m.timeout = d }
}

func WithMetrics(collector *monitoring.PrometheusCollector) Option {
	return func(m *ConnectionMonitor) { m.metrics = collector }
}

func WithHTTPClient(client *http.Client) Option {
	return func(m *ConnectionMonitor) { m.client = client }
}

// ConnectionMonitor polls the backend status endpoint and fans state
// transitions out to subscribers. It is constructed once per process and
// passed explicitly; there are no package-level globals. Polling is
// ref-counted by subscriber count: the first subscriber starts it (with an
// immediate probe), the last one leaving stops it.
type ConnectionMonitor struct {
	url      string
	client   *http.Client
	interval time.Duration
	timeout  time.Duration
	metrics  *monitoring.PrometheusCollector
	logger   *zap.SugaredLogger

	mu         sync.Mutex
	state      domain.ConnectivityState
	backend    domain.BackendType
	lastChange time.Time
	subs       map[int]func(domain.ConnectivityEvent)
	nextSubID  int
	stopPoll   chan struct{} // non-nil while the poll loop runs
}

// New creates a monitor probing GET statusURL.
func New(statusURL string, logger *zap.Logger, opts ...Option) *ConnectionMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &ConnectionMonitor{
		url:      statusURL,
		client:   &http.Client{},
		interval: 5 * time.Second,
		timeout:  5 * time.Second,
		logger:   logger.Sugar(),
		state:    domain.ConnectivityUnknown,
		subs:     make(map[int]func(domain.ConnectivityEvent)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current cached connectivity state.
func (m *ConnectionMonitor) State() domain.ConnectivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Backend returns the backend type last reported by the status endpoint.
func (m *ConnectionMonitor) Backend() domain.BackendType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend
}

// LastChange returns when the state last transitioned.
func (m *ConnectionMonitor) LastChange() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastChange
}

// Subscribe registers fn, delivers the cached state immediately, and
// starts polling if this is the first subscriber. The returned func
// unregisters fn and stops polling when no subscribers remain; it is safe
// to call at any time, including more than once.
func (m *ConnectionMonitor) Subscribe(fn func(domain.ConnectivityEvent)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = fn
	current := domain.ConnectivityEvent{State: m.state, At: m.lastChange}
	start := len(m.subs) == 1 && m.stopPoll == nil
	var stop chan struct{}
	if start {
		stop = make(chan struct{})
		m.stopPoll = stop
	}
	m.mu.Unlock()

	// Immediate delivery of the cached state; never reported as recovery.
	fn(current)

	if start {
		go m.poll(stop)
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.unsubscribe(id) })
	}
}

func (m *ConnectionMonitor) unsubscribe(id int) {
	m.mu.Lock()
	delete(m.subs, id)
	var stop chan struct{}
	if len(m.subs) == 0 && m.stopPoll != nil {
		stop = m.stopPoll
		m.stopPoll = nil
	}
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}
}

// CheckNow performs one immediate probe without waiting for the timer and
// returns the resulting reachability.
func (m *ConnectionMonitor) CheckNow(ctx context.Context) bool {
	ok := m.probe(ctx)
	m.apply(ok)
	return ok
}

func (m *ConnectionMonitor) poll(stop chan struct{}) {
	// First probe fires right away so subscribers are not left on the
	// cached state for a whole interval.
	m.apply(m.probe(context.Background()))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.apply(m.probe(context.Background()))
		case <-stop:
			return
		}
	}
}

// probe issues one bounded-time health request. All failures are swallowed
// here; the only observable effect is the returned reachability.
func (m *ConnectionMonitor) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		m.logger.Debugw("health probe request build failed", "error", err)
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Debugw("health probe failed", "error", err)
		if m.metrics != nil {
			m.metrics.RecordProbeFailure()
		}
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		m.logger.Debugw("health probe returned non-2xx", "status", resp.StatusCode)
		if m.metrics != nil {
			m.metrics.RecordProbeFailure()
		}
		return false
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		m.logger.Debugw("health probe body unreadable", "error", err)
		return false
	}

	if status.BackendType != "" {
		m.mu.Lock()
		m.backend = domain.BackendType(status.BackendType)
		m.mu.Unlock()
	}

	return status.Success
}

// apply folds one probe result into the state and notifies subscribers on
// an actual change. Repeated identical results never notify.
func (m *ConnectionMonitor) apply(reachable bool) {
	next := domain.ConnectivityDisconnected
	if reachable {
		next = domain.ConnectivityConnected
	}

	m.mu.Lock()
	prev := m.state
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	m.lastChange = time.Now()

	event := domain.ConnectivityEvent{
		State: next,
		At:    m.lastChange,
		// The initial unknown->connected resolution is not a recovery;
		// only a true disconnected->connected transition is.
		Recovered: prev == domain.ConnectivityDisconnected && next == domain.ConnectivityConnected,
	}
	listeners := make([]func(domain.ConnectivityEvent), 0, len(m.subs))
	for _, fn := range m.subs {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	m.logger.Infow("connectivity changed", "from", prev, "to", next, "recovered", event.Recovered)
	if m.metrics != nil {
		m.metrics.RecordConnectivityTransition(next)
	}

	for _, fn := range listeners {
		fn(event)
	}
}
