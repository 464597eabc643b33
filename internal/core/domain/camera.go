package domain

type CameraID int64

// CameraEndpoint describes where a single camera's media and control
// channels live. It is immutable once handed to a session; any change of
// identity tears the session down and builds a fresh one.
type CameraEndpoint struct {
	ID   CameraID `json:"id"`
	Name string   `json:"name"`

	// StreamURL is the negotiation endpoint. A ws:// URL selects the
	// signaling-channel transport, an http:// URL the synchronous
	// offer/answer POST transport. Empty means negotiation rides the
	// control channel.
	StreamURL string `json:"stream_url"`

	// ControlURL is the per-camera event channel (detections, plate
	// crops, vehicle info).
	ControlURL string `json:"control_url"`

	// Credentials, when present, are embedded into media requests.
	Credentials string `json:"credentials,omitempty"`

	// Audio declares whether the endpoint offers an audio track.
	Audio bool `json:"audio"`
}

// SameIdentity reports whether two endpoints describe the same session
// identity. A difference in any transport descriptor or the audio flag is
// an identity change.
func (e CameraEndpoint) SameIdentity(other CameraEndpoint) bool {
	return e.ID == other.ID &&
		e.StreamURL == other.StreamURL &&
		e.ControlURL == other.ControlURL &&
		e.Credentials == other.Credentials &&
		e.Audio == other.Audio
}
