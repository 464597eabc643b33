package domain

import (
	"fmt"
	"strings"
)

// StreamSource builds a media source name: a base identifier plus
// pipe-style query modifiers appended with '#'. Modifiers are hints to the
// media backend (codec, resolution caps, audio passthrough) and are applied
// in the order they were added.
type StreamSource struct {
	Base      string
	modifiers []string
}

func NewStreamSource(base string) StreamSource {
	return StreamSource{Base: base}
}

// WithCodec requests a specific video codec from the backend.
func (s StreamSource) WithCodec(codec string) StreamSource {
	s.modifiers = append(s.modifiers, "video="+codec)
	return s
}

// WithMaxWidth caps the horizontal resolution, used to request a
// lower-bitrate variant for constrained views.
func (s StreamSource) WithMaxWidth(width int) StreamSource {
	s.modifiers = append(s.modifiers, fmt.Sprintf("width=%d", width))
	return s
}

// WithHardware asks for the hardware-accelerated pipeline when available.
func (s StreamSource) WithHardware() StreamSource {
	s.modifiers = append(s.modifiers, "hardware")
	return s
}

// WithAudio passes the source audio track through instead of stripping it.
func (s StreamSource) WithAudio() StreamSource {
	s.modifiers = append(s.modifiers, "audio")
	return s
}

func (s StreamSource) String() string {
	if len(s.modifiers) == 0 {
		return s.Base
	}
	return s.Base + "#" + strings.Join(s.modifiers, "#")
}
