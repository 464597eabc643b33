package signal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"platewatch/internal/core/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsBackend upgrades connections, records inbound text frames and lets
// tests push frames to the newest client.
type wsBackend struct {
	mu      sync.Mutex
	conns   []*websocket.Conn
	inbound []string
	dials   atomic.Int64
	server  *httptest.Server
}

func newWSBackend(t *testing.T) *wsBackend {
	b := &wsBackend{}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.dials.Add(1)
		b.mu.Lock()
		b.conns = append(b.conns, conn)
		b.mu.Unlock()

		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				b.mu.Lock()
				b.inbound = append(b.inbound, string(data))
				b.mu.Unlock()
			}
		}()
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *wsBackend) url() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

func (b *wsBackend) push(t *testing.T, frame string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		n := len(b.conns)
		var conn *websocket.Conn
		if n > 0 {
			conn = b.conns[n-1]
		}
		b.mu.Unlock()
		if conn != nil {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no client connected")
}

func (b *wsBackend) dropAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, conn := range b.conns {
		conn.Close()
	}
	b.conns = nil
}

func (b *wsBackend) received() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.inbound))
	copy(out, b.inbound)
	return out
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestClient_DispatchesDetection(t *testing.T) {
	backend := newWSBackend(t)

	var mu sync.Mutex
	var batches []domain.DetectionBatch
	client := NewClient(backend.url(), 50*time.Millisecond, Handlers{
		OnDetection: func(b domain.DetectionBatch) {
			mu.Lock()
			batches = append(batches, b)
			mu.Unlock()
		},
	}, zap.NewNop())
	defer client.Close()

	client.Connect()
	backend.push(t, `{"type":"detection","detections":[{"class":"car","confidence":0.9,"bbox":[1,2,3,4]}]}`)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 1
	}, "detection batch not dispatched")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "car", batches[0].Detections[0].Class)
	assert.False(t, batches[0].ReceivedAt.IsZero())
}

func TestClient_VehicleInfoReplacesState(t *testing.T) {
	backend := newWSBackend(t)

	var mu sync.Mutex
	var last *domain.VehicleRecord
	client := NewClient(backend.url(), 50*time.Millisecond, Handlers{
		OnVehicleInfo: func(v domain.VehicleRecord) {
			mu.Lock()
			last = &v
			mu.Unlock()
		},
	}, zap.NewNop())
	defer client.Close()

	client.Connect()
	backend.push(t, `{"type":"vehicle_info","vehicle":{"entry_time":"12:00","exit_time":null,"fee":0,"duration":null,"is_anomaly":false}}`)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last != nil
	}, "vehicle info not dispatched")

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, last.EntryTime)
	assert.Equal(t, "12:00", *last.EntryTime)
	assert.Nil(t, last.ExitTime)
	assert.False(t, last.IsAnomaly)
}

func TestClient_AnswersPingWithPong(t *testing.T) {
	backend := newWSBackend(t)
	client := NewClient(backend.url(), 50*time.Millisecond, Handlers{}, zap.NewNop())
	defer client.Close()

	client.Connect()
	backend.push(t, "ping")

	waitFor(t, func() bool {
		for _, frame := range backend.received() {
			if frame == "pong" {
				return true
			}
		}
		return false
	}, "no pong reply observed")
}

func TestClient_SendsKeepalivePings(t *testing.T) {
	backend := newWSBackend(t)
	client := NewClient(backend.url(), 50*time.Millisecond, Handlers{}, zap.NewNop(),
		WithPingInterval(20*time.Millisecond))
	defer client.Close()

	client.Connect()

	waitFor(t, func() bool {
		pings := 0
		for _, frame := range backend.received() {
			if frame == "ping" {
				pings++
			}
		}
		return pings >= 2
	}, "expected periodic keepalive pings")
}

func TestClient_MalformedFramesAreDiscarded(t *testing.T) {
	backend := newWSBackend(t)

	var detections atomic.Int64
	client := NewClient(backend.url(), 50*time.Millisecond, Handlers{
		OnDetection: func(domain.DetectionBatch) { detections.Add(1) },
	}, zap.NewNop())
	defer client.Close()

	client.Connect()
	backend.push(t, `{broken`)
	backend.push(t, `{"type":"no_such_kind"}`)
	backend.push(t, `{"type":"detection","detections":[]}`)

	waitFor(t, func() bool { return detections.Load() == 1 }, "valid frame after garbage not dispatched")
}

func TestClient_SendWhenClosedDropsSilently(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1/ws", time.Hour, Handlers{}, zap.NewNop())
	defer client.Close()

	assert.NotPanics(t, func() {
		client.Send(Message{Kind: KindOffer, SDP: "v=0"})
	})
}

func TestClient_SendAfterCloseReportsClosedChannel(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1/ws", time.Hour, Handlers{}, zap.NewNop())
	client.Close()

	err := client.Send(Message{Kind: KindOffer, SDP: "v=0"})
	assert.ErrorIs(t, err, domain.ErrChannelClosed)
}

func TestClient_ConcurrentSendersShareOneWriter(t *testing.T) {
	backend := newWSBackend(t)
	client := NewClient(backend.url(), time.Hour, Handlers{}, zap.NewNop(),
		WithPingInterval(time.Millisecond))
	defer client.Close()

	client.Connect()
	waitFor(t, func() bool { return backend.dials.Load() == 1 }, "first dial missing")

	// Outbound messages race the keepalive ticker; the connection permits
	// only one writer at a time.
	const senders, perSender = 8, 50
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				client.Send(Message{Kind: KindCandidate, Candidate: "candidate:0 1 udp 1 127.0.0.1 9 typ host"})
			}
		}()
	}
	wg.Wait()

	waitFor(t, func() bool {
		sent := 0
		for _, frame := range backend.received() {
			if frame != "ping" {
				sent++
			}
		}
		return sent == senders*perSender
	}, "expected every concurrent send to arrive intact")
}

func TestClient_ReconnectsAfterAbnormalClose(t *testing.T) {
	backend := newWSBackend(t)
	client := NewClient(backend.url(), 20*time.Millisecond, Handlers{}, zap.NewNop())
	defer client.Close()

	client.Connect()
	waitFor(t, func() bool { return backend.dials.Load() == 1 }, "first dial missing")

	backend.dropAll()
	waitFor(t, func() bool { return backend.dials.Load() >= 2 }, "expected a redial after abnormal close")
}

func TestClient_CloseCancelsPendingReconnect(t *testing.T) {
	backend := newWSBackend(t)
	client := NewClient(backend.url(), 50*time.Millisecond, Handlers{}, zap.NewNop())

	client.Connect()
	waitFor(t, func() bool { return backend.dials.Load() == 1 }, "first dial missing")

	backend.dropAll()
	// Tear down while the retry is pending; no reconnect may fire after.
	client.Close()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int64(1), backend.dials.Load(), "reconnect fired after Close")
}

func TestClient_RedialBringsUpFreshConnection(t *testing.T) {
	backend := newWSBackend(t)
	client := NewClient(backend.url(), 20*time.Millisecond, Handlers{}, zap.NewNop())
	defer client.Close()

	client.Connect()
	waitFor(t, func() bool { return backend.dials.Load() == 1 }, "first dial missing")

	client.Redial()
	waitFor(t, func() bool { return backend.dials.Load() >= 2 }, "expected fresh dial after Redial")
}
