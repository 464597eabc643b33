package services

import (
	"context"
	"strings"
	"sync"

	"platewatch/internal/core/domain"
	"platewatch/internal/core/ports"
	"platewatch/internal/infrastructure/monitoring"
	"platewatch/internal/infrastructure/signal"
	"platewatch/pkg/config"

	"go.uber.org/zap"
)

// CameraListService keeps the camera inventory current: it holds the
// camera-list channel open, replaces the inventory wholesale on every
// update, and drives the view manager from it.
type CameraListService struct {
	client       *signal.Client
	manager      *ViewManager
	connectivity ports.ConnectivityService
	logger       *zap.SugaredLogger
	unsubscribe  func()

	mu      sync.Mutex
	cameras []domain.CameraEndpoint
}

func NewCameraListService(
	cfg *config.Config,
	manager *ViewManager,
	connectivity ports.ConnectivityService,
	metrics *monitoring.PrometheusCollector,
	logger *zap.Logger,
) *CameraListService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CameraListService{
		manager:      manager,
		connectivity: connectivity,
		logger:       logger.Sugar(),
	}

	url := CameraListURL(cfg.Backend.BaseURL)
	s.client = signal.NewClient(url, cfg.Signaling.CameraListRetryDelay,
		signal.Handlers{
			OnCamerasUpdate: s.onCamerasUpdate,
			OnError: func(message string) {
				s.logger.Warnw("camera list channel error", "message", message)
			},
		},
		logger,
		signal.WithChannelLabel("cameras"),
		signal.WithPingInterval(cfg.Signaling.PingInterval),
		signal.WithClientMetrics(metrics),
	)
	return s
}

// CameraListURL derives the camera-list channel URL from the control-plane
// base.
func CameraListURL(baseURL string) string {
	url := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + "/ws/cameras"
}

// Start opens the channel and arms the recovery redial.
func (s *CameraListService) Start() {
	if s.connectivity != nil {
		s.unsubscribe = s.connectivity.Subscribe(func(event domain.ConnectivityEvent) {
			if event.Recovered {
				s.logger.Infow("backend recovered, redialing camera list channel")
				s.client.Redial()
			}
		})
	}
	s.client.Connect()
}

func (s *CameraListService) onCamerasUpdate(cameras []domain.CameraEndpoint) {
	s.mu.Lock()
	s.cameras = cameras
	s.mu.Unlock()

	s.logger.Infow("camera list updated", "count", len(cameras))
	s.manager.SyncCameras(context.Background(), cameras)
}

// Cameras returns the current inventory as last pushed by the backend.
func (s *CameraListService) Cameras() []domain.CameraEndpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CameraEndpoint, len(s.cameras))
	copy(out, s.cameras)
	return out
}

// Close stops the recovery subscription, the channel, and every view.
func (s *CameraListService) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.client.Close()
	s.manager.Close()
}
