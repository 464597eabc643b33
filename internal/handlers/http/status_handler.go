package http

import (
	"bytes"
	"fmt"
	"image/png"
	"net/http"
	"strconv"

	"platewatch/internal/core/domain"
	"platewatch/internal/core/ports"
	"platewatch/internal/core/services"
	"platewatch/internal/infrastructure/monitoring"
	"platewatch/pkg/cache"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusHandler exposes the viewer's local status API: backend
// connectivity, per-camera view state, the latest plate crops, and the
// Prometheus registry.
type StatusHandler struct {
	connectivity ports.ConnectivityService
	cameras      *services.CameraListService
	views        *services.ViewManager
	plates       *cache.Cache
	metrics      *monitoring.PrometheusCollector
}

func NewStatusHandler(
	connectivity ports.ConnectivityService,
	cameras *services.CameraListService,
	views *services.ViewManager,
	plates *cache.Cache,
	metrics *monitoring.PrometheusCollector,
) *StatusHandler {
	return &StatusHandler{
		connectivity: connectivity,
		cameras:      cameras,
		views:        views,
		plates:       plates,
		metrics:      metrics,
	}
}

func (h *StatusHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)

	api := router.Group("/api/v1")
	{
		api.GET("/cameras", h.ListCameras)
		api.GET("/cameras/:id", h.GetCamera)
		api.GET("/cameras/:id/plate", h.GetPlateCrop)
		api.GET("/cameras/:id/overlay", h.GetOverlay)
	}

	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
			h.metrics.Registry(), promhttp.HandlerOpts{})))
	}
}

func (h *StatusHandler) Health(c *gin.Context) {
	state := domain.ConnectivityUnknown
	if h.connectivity != nil {
		state = h.connectivity.State()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"backend": state,
	})
}

func (h *StatusHandler) ListCameras(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"cameras": h.cameras.Cameras(),
		"views":   h.views.Snapshots(),
	})
}

func (h *StatusHandler) GetCamera(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera id"})
		return
	}

	view := h.views.View(domain.CameraID(id))
	if view == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		return
	}
	c.JSON(http.StatusOK, view.Snapshot())
}

// GetOverlay serves the camera's current detection overlay as a PNG.
func (h *StatusHandler) GetOverlay(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera id"})
		return
	}

	view := h.views.View(domain.CameraID(id))
	if view == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		return
	}
	surface := view.Overlay()
	if surface == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no overlay rendered"})
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, surface); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "overlay encoding failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (h *StatusHandler) GetPlateCrop(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera id"})
		return
	}

	crop, ok := h.plates.Get(fmt.Sprintf("plate:%d", id))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no plate crop for camera"})
		return
	}
	plate, ok := crop.(domain.PlateCrop)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unexpected cache entry"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"image":       plate.Image,
		"received_at": plate.ReceivedAt,
	})
}
