package monitoring

import (
	"platewatch/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector gathers viewer-side runtime metrics: connectivity
// transitions, signaling reconnects, session states, detection and render
// throughput.
type PrometheusCollector struct {
	registry *prometheus.Registry

	connectivityTransitions *prometheus.CounterVec
	probeFailuresTotal      prometheus.Counter

	signalReconnectsTotal *prometheus.CounterVec
	signalDroppedFrames   prometheus.Counter

	sessionsByState *prometheus.GaugeVec
	sessionRetries  prometheus.Counter

	detectionsReceived *prometheus.CounterVec
	platesRecognized   *prometheus.CounterVec
	framesRendered     prometheus.Counter
	staleBatchesTotal  prometheus.Counter
}

func NewPrometheusCollector() *PrometheusCollector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &PrometheusCollector{
		registry: registry,

		connectivityTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "platewatch_connectivity_transitions_total",
			Help: "Connectivity state transitions observed by the health monitor",
		}, []string{"to"}),

		probeFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "platewatch_probe_failures_total",
			Help: "Health probes that ended in a non-2xx, timeout or network error",
		}),

		signalReconnectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "platewatch_signal_reconnects_total",
			Help: "Signaling channel reconnect attempts scheduled",
		}, []string{"channel"}),

		signalDroppedFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "platewatch_signal_dropped_frames_total",
			Help: "Inbound signaling frames discarded as malformed or unknown",
		}),

		sessionsByState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "platewatch_sessions",
			Help: "Media sessions by lifecycle state",
		}, []string{"state"}),

		sessionRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "platewatch_session_retries_total",
			Help: "Media session reconnect attempts scheduled",
		}),

		detectionsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "platewatch_detections_received_total",
			Help: "Detection batches received per camera",
		}, []string{"camera"}),

		platesRecognized: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "platewatch_plates_recognized_total",
			Help: "Detections carrying recognized plate text, per camera",
		}, []string{"camera"}),

		framesRendered: factory.NewCounter(prometheus.CounterOpts{
			Name: "platewatch_overlay_frames_rendered_total",
			Help: "Overlay frames painted",
		}),

		staleBatchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "platewatch_overlay_stale_batches_total",
			Help: "Render ticks that suppressed an expired detection batch",
		}),
	}
}

// Registry exposes the dedicated registry for the /metrics endpoint.
func (p *PrometheusCollector) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusCollector) RecordConnectivityTransition(to domain.ConnectivityState) {
	p.connectivityTransitions.WithLabelValues(string(to)).Inc()
}

func (p *PrometheusCollector) RecordProbeFailure() {
	p.probeFailuresTotal.Inc()
}

func (p *PrometheusCollector) RecordSignalReconnect(channel string) {
	p.signalReconnectsTotal.WithLabelValues(channel).Inc()
}

func (p *PrometheusCollector) RecordDroppedFrame() {
	p.signalDroppedFrames.Inc()
}

func (p *PrometheusCollector) RecordSessionState(from, to domain.SessionState) {
	if from != "" {
		p.sessionsByState.WithLabelValues(string(from)).Dec()
	}
	p.sessionsByState.WithLabelValues(string(to)).Inc()
}

func (p *PrometheusCollector) RecordSessionRetry() {
	p.sessionRetries.Inc()
}

func (p *PrometheusCollector) RecordDetections(camera string, batch domain.DetectionBatch) {
	p.detectionsReceived.WithLabelValues(camera).Inc()
	for _, det := range batch.Detections {
		if det.PlateText != "" {
			p.platesRecognized.WithLabelValues(camera).Inc()
		}
	}
}

func (p *PrometheusCollector) RecordFrameRendered() {
	p.framesRendered.Inc()
}

func (p *PrometheusCollector) RecordStaleBatch() {
	p.staleBatchesTotal.Inc()
}
