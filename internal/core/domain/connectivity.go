package domain

import "time"

// ConnectivityState is the backend reachability as seen by the health
// monitor. There is exactly one instance process-wide; only the monitor
// mutates it.
type ConnectivityState string

const (
	ConnectivityUnknown      ConnectivityState = "unknown"
	ConnectivityConnected    ConnectivityState = "connected"
	ConnectivityDisconnected ConnectivityState = "disconnected"
)

// ConnectivityEvent is delivered to subscribers on registration and on
// every actual state change. Recovered is true only for a
// disconnected-to-connected transition; the initial unknown-to-connected
// resolution is not a recovery.
type ConnectivityEvent struct {
	State     ConnectivityState
	Recovered bool
	At        time.Time
}

// BackendType is reported by the status endpoint alongside the health bit.
type BackendType string

const (
	BackendEdge    BackendType = "edge"
	BackendCentral BackendType = "central"
)
