package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamSource_NoModifiers(t *testing.T) {
	src := NewStreamSource("camera1")
	assert.Equal(t, "camera1", src.String())
}

func TestStreamSource_ModifierOrder(t *testing.T) {
	src := NewStreamSource("camera1").
		WithCodec("h264").
		WithMaxWidth(640).
		WithAudio()

	assert.Equal(t, "camera1#video=h264#width=640#audio", src.String())
}

func TestStreamSource_ValueSemantics(t *testing.T) {
	base := NewStreamSource("cam")
	constrained := base.WithCodec("h264")

	// The base builder must stay untouched.
	assert.Equal(t, "cam", base.String())
	assert.Equal(t, "cam#video=h264", constrained.String())
}

func TestStreamSource_Hardware(t *testing.T) {
	src := NewStreamSource("cam").WithHardware()
	assert.Equal(t, "cam#hardware", src.String())
}
