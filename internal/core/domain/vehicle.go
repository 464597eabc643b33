package domain

import "time"

// VehicleRecord is the per-camera vehicle state derived from the control
// channel. Each vehicle_info message replaces the record wholesale; no
// history is retained on this side.
type VehicleRecord struct {
	EntryTime *string  `json:"entry_time"`
	ExitTime  *string  `json:"exit_time"`
	Fee       float64  `json:"fee"`
	Duration  *float64 `json:"duration"`
	IsAnomaly bool     `json:"is_anomaly"`
}

// PlateCrop is the latest plate crop pushed by the backend, either a data
// URL or a fetchable URL.
type PlateCrop struct {
	Image      string
	ReceivedAt time.Time
}
