package domain

import "time"

// BoundingBox is a detection rectangle in source-video pixel space.
type BoundingBox struct {
	X float64
	Y float64
	W float64
	H float64
}

// Detection is one recognized object in an analyzed frame.
type Detection struct {
	Class      string
	Confidence float64 // 0..1
	Box        BoundingBox
	PlateText  string // recognized text, empty when none
}

// DetectionBatch is the full set of objects recognized in the most recent
// analyzed frame. A new batch replaces the previous one wholesale; batches
// are never merged.
type DetectionBatch struct {
	Detections []Detection
	ReceivedAt time.Time
}

// Expired reports whether the batch is older than ttl and must no longer
// be rendered.
func (b DetectionBatch) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(b.ReceivedAt) > ttl
}

// LastPlate returns the most recently listed recognized text in the batch,
// or "" when no detection carries one.
func (b DetectionBatch) LastPlate() string {
	for i := len(b.Detections) - 1; i >= 0; i-- {
		if b.Detections[i].PlateText != "" {
			return b.Detections[i].PlateText
		}
	}
	return ""
}
