package services

import (
	"context"
	"image"
	"sort"
	"sync"

	"platewatch/internal/core/domain"

	"go.uber.org/zap"
)

// View is one live camera tile. CameraViewController is the production
// implementation; tests substitute fakes.
type View interface {
	Start(ctx context.Context) error
	Rename(name string)
	Endpoint() domain.CameraEndpoint
	Snapshot() ViewSnapshot
	Overlay() *image.RGBA
	Close()
}

// ViewFactory builds a view for an endpoint.
type ViewFactory func(endpoint domain.CameraEndpoint) View

// ViewManager reconciles the set of live views against each camera list
// the backend pushes. The list replaces the previous one wholesale: a
// camera missing from the update loses its view, a camera whose identity
// changed gets a fresh one, and a pure rename touches nothing else.
type ViewManager struct {
	factory ViewFactory
	logger  *zap.SugaredLogger

	mu    sync.Mutex
	views map[domain.CameraID]View
}

func NewViewManager(factory ViewFactory, logger *zap.Logger) *ViewManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewManager{
		factory: factory,
		logger:  logger.Sugar(),
		views:   make(map[domain.CameraID]View),
	}
}

// SyncCameras brings the live views in line with cameras.
func (m *ViewManager) SyncCameras(ctx context.Context, cameras []domain.CameraEndpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[domain.CameraID]struct{}, len(cameras))
	for _, endpoint := range cameras {
		seen[endpoint.ID] = struct{}{}

		existing, ok := m.views[endpoint.ID]
		if ok {
			if existing.Endpoint().SameIdentity(endpoint) {
				if existing.Endpoint().Name != endpoint.Name {
					m.logger.Infow("camera renamed", "camera_id", endpoint.ID, "name", endpoint.Name)
					existing.Rename(endpoint.Name)
				}
				continue
			}
			m.logger.Infow("camera identity changed, rebuilding view", "camera_id", endpoint.ID)
			existing.Close()
			delete(m.views, endpoint.ID)
		}

		m.startView(ctx, endpoint)
	}

	for id, view := range m.views {
		if _, ok := seen[id]; !ok {
			m.logger.Infow("camera removed", "camera_id", id)
			view.Close()
			delete(m.views, id)
		}
	}
}

func (m *ViewManager) startView(ctx context.Context, endpoint domain.CameraEndpoint) {
	view := m.factory(endpoint)
	if err := view.Start(ctx); err != nil {
		m.logger.Errorw("cannot start camera view", "camera_id", endpoint.ID, "error", err)
		view.Close()
		return
	}
	m.views[endpoint.ID] = view
	m.logger.Infow("camera view started", "camera_id", endpoint.ID, "name", endpoint.Name)
}

// View returns the live view for id, or nil.
func (m *ViewManager) View(id domain.CameraID) View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.views[id]
}

// Snapshots reports every live view's state, ordered by camera ID.
func (m *ViewManager) Snapshots() []ViewSnapshot {
	m.mu.Lock()
	views := make([]View, 0, len(m.views))
	for _, v := range m.views {
		views = append(views, v)
	}
	m.mu.Unlock()

	snapshots := make([]ViewSnapshot, 0, len(views))
	for _, v := range views {
		snapshots = append(snapshots, v.Snapshot())
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Camera.ID < snapshots[j].Camera.ID
	})
	return snapshots
}

// Close tears down every live view.
func (m *ViewManager) Close() {
	m.mu.Lock()
	views := m.views
	m.views = make(map[domain.CameraID]View)
	m.mu.Unlock()

	for _, view := range views {
		view.Close()
	}
}
