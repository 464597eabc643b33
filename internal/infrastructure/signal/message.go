package signal

import (
	"encoding/json"
	"fmt"
	"time"

	"platewatch/internal/core/domain"
)

// Kind tags every frame crossing a signaling channel. The set is closed:
// Decode returns domain.ErrUnknownMessageKind for anything else, and
// dispatch switches exhaustively over these values.
type Kind string

const (
	KindOffer         Kind = "webrtc/offer"
	KindAnswer        Kind = "webrtc/answer"
	KindCandidate     Kind = "webrtc/candidate"
	KindDetection     Kind = "detection"
	KindPlateImage    Kind = "plate_image"
	KindVehicleInfo   Kind = "vehicle_info"
	KindCamerasUpdate Kind = "cameras_update"
	KindError         Kind = "error"
	KindPing          Kind = "ping"
	KindPong          Kind = "pong"
)

// Message is the decoded form of one signaling frame. Exactly the fields
// for its Kind are populated.
type Message struct {
	Kind Kind

	// SDP carries the session description for Offer and Answer.
	SDP string
	// Candidate carries the ICE candidate string for Candidate.
	Candidate string
	// ErrorText carries the backend's message for Error.
	ErrorText string

	Batch      domain.DetectionBatch   // Detection
	PlateImage string                  // PlateImage
	Vehicle    *domain.VehicleRecord   // VehicleInfo
	Cameras    []domain.CameraEndpoint // CamerasUpdate
}

// envelope covers every JSON wire shape the channels produce. Which fields
// are set depends on the type tag.
type envelope struct {
	Type string `json:"type"`

	// webrtc/* and error frames: {type, value}
	Value string `json:"value,omitempty"`

	// detection frames
	Detections []detectionWire `json:"detections,omitempty"`

	// plate_image frames
	Image string `json:"image,omitempty"`

	// vehicle_info frames
	Vehicle *domain.VehicleRecord `json:"vehicle,omitempty"`

	// cameras_update frames
	Data *camerasData `json:"data,omitempty"`
}

type detectionWire struct {
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"`
	PlateText  string     `json:"plate_text,omitempty"`
}

type camerasData struct {
	Cameras []domain.CameraEndpoint `json:"cameras"`
}

// Decode parses one raw frame. Bare "ping"/"pong" text frames are valid
// keepalive messages; everything else must be a JSON envelope with a known
// type tag. now stamps detection batches with their arrival time.
func Decode(data []byte, now time.Time) (Message, error) {
	switch string(data) {
	case "ping":
		return Message{Kind: KindPing}, nil
	case "pong":
		return Message{Kind: KindPong}, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}

	switch Kind(env.Type) {
	case KindOffer:
		return Message{Kind: KindOffer, SDP: env.Value}, nil
	case KindAnswer:
		return Message{Kind: KindAnswer, SDP: env.Value}, nil
	case KindCandidate:
		return Message{Kind: KindCandidate, Candidate: env.Value}, nil
	case KindError:
		return Message{Kind: KindError, ErrorText: env.Value}, nil
	case KindDetection:
		batch := domain.DetectionBatch{
			Detections: make([]domain.Detection, 0, len(env.Detections)),
			ReceivedAt: now,
		}
		for _, d := range env.Detections {
			batch.Detections = append(batch.Detections, domain.Detection{
				Class:      d.Class,
				Confidence: d.Confidence,
				Box:        domain.BoundingBox{X: d.BBox[0], Y: d.BBox[1], W: d.BBox[2], H: d.BBox[3]},
				PlateText:  d.PlateText,
			})
		}
		return Message{Kind: KindDetection, Batch: batch}, nil
	case KindPlateImage:
		return Message{Kind: KindPlateImage, PlateImage: env.Image}, nil
	case KindVehicleInfo:
		if env.Vehicle == nil {
			return Message{}, fmt.Errorf("%w: vehicle_info without vehicle", domain.ErrMalformedMessage)
		}
		return Message{Kind: KindVehicleInfo, Vehicle: env.Vehicle}, nil
	case KindCamerasUpdate:
		if env.Data == nil {
			return Message{}, fmt.Errorf("%w: cameras_update without data", domain.ErrMalformedMessage)
		}
		return Message{Kind: KindCamerasUpdate, Cameras: env.Data.Cameras}, nil
	case KindPing:
		return Message{Kind: KindPing}, nil
	case KindPong:
		return Message{Kind: KindPong}, nil
	default:
		return Message{}, fmt.Errorf("%w: %q", domain.ErrUnknownMessageKind, env.Type)
	}
}

// Encode serializes an outbound message. Ping and Pong go out as bare text
// frames, everything else as the JSON envelope.
func Encode(msg Message) ([]byte, error) {
	switch msg.Kind {
	case KindPing:
		return []byte("ping"), nil
	case KindPong:
		return []byte("pong"), nil
	case KindOffer, KindAnswer:
		return json.Marshal(envelope{Type: string(msg.Kind), Value: msg.SDP})
	case KindCandidate:
		return json.Marshal(envelope{Type: string(msg.Kind), Value: msg.Candidate})
	case KindError:
		return json.Marshal(envelope{Type: string(msg.Kind), Value: msg.ErrorText})
	default:
		return nil, fmt.Errorf("%w: cannot encode %q", domain.ErrUnknownMessageKind, msg.Kind)
	}
}
