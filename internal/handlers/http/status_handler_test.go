package http

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"platewatch/internal/core/domain"
	"platewatch/internal/core/services"
	"platewatch/pkg/cache"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubConnectivity struct {
	state domain.ConnectivityState
}

func (s *stubConnectivity) State() domain.ConnectivityState { return s.state }

func (s *stubConnectivity) Subscribe(func(domain.ConnectivityEvent)) func() {
	return func() {}
}

func (s *stubConnectivity) CheckNow(context.Context) bool {
	return s.state == domain.ConnectivityConnected
}

type stubView struct {
	endpoint domain.CameraEndpoint
	surface  *image.RGBA
}

func (v *stubView) Start(context.Context) error { return nil }

func (v *stubView) Rename(name string) { v.endpoint.Name = name }

func (v *stubView) Endpoint() domain.CameraEndpoint { return v.endpoint }

func (v *stubView) Overlay() *image.RGBA { return v.surface }

func (v *stubView) Close() {}
func (v *stubView) Snapshot() services.ViewSnapshot {
	return services.ViewSnapshot{
		Camera:       v.endpoint,
		SessionState: domain.SessionConnected,
	}
}

func newTestRouter(t *testing.T) (*gin.Engine, *services.ViewManager, *cache.Cache) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	views := services.NewViewManager(func(e domain.CameraEndpoint) services.View {
		return &stubView{endpoint: e}
	}, zap.NewNop())
	views.SyncCameras(context.Background(), []domain.CameraEndpoint{
		{ID: 1, Name: "gate", ControlURL: "ws://backend/ws/camera/1"},
	})
	t.Cleanup(views.Close)

	plates := cache.New(time.Minute)
	t.Cleanup(plates.Stop)

	handler := NewStatusHandler(
		&stubConnectivity{state: domain.ConnectivityConnected},
		nil,
		views,
		plates,
		nil,
	)

	router := gin.New()
	router.GET("/healthz", handler.Health)
	api := router.Group("/api/v1")
	api.GET("/cameras/:id", handler.GetCamera)
	api.GET("/cameras/:id/plate", handler.GetPlateCrop)

	return router, views, plates
}

func TestStatusHandler_Health(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "connected", body["backend"])
}

func TestStatusHandler_GetCamera(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/cameras/1", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var snapshot services.ViewSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, domain.CameraID(1), snapshot.Camera.ID)
	assert.Equal(t, domain.SessionConnected, snapshot.SessionState)
}

func TestStatusHandler_GetCameraNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/cameras/99", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/cameras/not-a-number", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusHandler_GetPlateCrop(t *testing.T) {
	router, _, plates := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/cameras/1/plate", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code, "no crop cached yet")

	plates.Set("plate:1", domain.PlateCrop{
		Image:      "data:image/jpeg;base64,xxxx",
		ReceivedAt: time.Now(),
	})

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/cameras/1/plate", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "data:image/jpeg;base64,xxxx", body["image"])
}

func TestStatusHandler_GetOverlay(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var created []*stubView
	views := services.NewViewManager(func(e domain.CameraEndpoint) services.View {
		v := &stubView{endpoint: e}
		created = append(created, v)
		return v
	}, zap.NewNop())
	views.SyncCameras(context.Background(), []domain.CameraEndpoint{
		{ID: 1, Name: "gate", ControlURL: "ws://backend/ws/camera/1"},
	})
	t.Cleanup(views.Close)

	handler := NewStatusHandler(&stubConnectivity{state: domain.ConnectivityConnected}, nil, views, nil, nil)
	router := gin.New()
	router.GET("/api/v1/cameras/:id/overlay", handler.GetOverlay)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/cameras/1/overlay", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code, "nothing painted yet")

	surface := image.NewRGBA(image.Rect(0, 0, 320, 240))
	surface.SetRGBA(10, 10, color.RGBA{R: 0x22, G: 0xc5, B: 0x5e, A: 0xff})
	require.Len(t, created, 1)
	created[0].surface = surface

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/cameras/1/overlay", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	decoded, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 320, decoded.Bounds().Dx())
	assert.Equal(t, 240, decoded.Bounds().Dy())
	r, g, b, a := decoded.At(10, 10).RGBA()
	assert.Equal(t, uint32(0x22), r>>8)
	assert.Equal(t, uint32(0xc5), g>>8)
	assert.Equal(t, uint32(0x5e), b>>8)
	assert.Equal(t, uint32(0xff), a>>8)
}
