package overlay

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
)

func TestFrameSinkReadiness(t *testing.T) {
	sink := NewFrameSink()
	assert.False(t, sink.Ready())

	var fired int
	sink.OnReady(func() { fired++ })

	sink.SetResolution(1280, 720)
	assert.True(t, sink.Ready())
	w, h := sink.Resolution()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)
	assert.Equal(t, 1, fired)

	// Later resolution changes update dimensions without re-firing.
	sink.SetResolution(1920, 1080)
	assert.Equal(t, 1, fired)

	// Registering after readiness fires immediately.
	sink.OnReady(func() { fired++ })
	assert.Equal(t, 2, fired)
}

func TestFrameSinkLearnsResolutionFromStream(t *testing.T) {
	sink := NewFrameSink()

	var fired int
	sink.OnReady(func() { fired++ })

	assert.NoError(t, sink.WriteRTP(&rtp.Packet{Payload: []byte{0x41, 0x00}}))
	assert.False(t, sink.Ready(), "slice data carries no dimensions")

	assert.NoError(t, sink.WriteRTP(&rtp.Packet{Payload: sps1280x720}))
	assert.True(t, sink.Ready())
	w, h := sink.Resolution()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)
	assert.Equal(t, 1, fired)

	// Further parameter sets on a ready sink do not re-fire readiness.
	assert.NoError(t, sink.WriteRTP(&rtp.Packet{Payload: sps1280x720}))
	assert.Equal(t, 1, fired)
}

func TestFrameSinkFirstFrame(t *testing.T) {
	sink := NewFrameSink()
	assert.False(t, sink.FirstFrame())

	assert.NoError(t, sink.WriteRTP(&rtp.Packet{}))
	assert.False(t, sink.FirstFrame(), "no marker yet")

	assert.NoError(t, sink.WriteRTP(&rtp.Packet{Header: rtp.Header{Marker: true}}))
	assert.True(t, sink.FirstFrame())
	assert.Equal(t, uint64(2), sink.Packets())
}

func TestFrameSinkDetachResets(t *testing.T) {
	sink := NewFrameSink()
	sink.SetResolution(640, 480)
	assert.NoError(t, sink.WriteRTP(&rtp.Packet{Header: rtp.Header{Marker: true}}))

	sink.Detach()

	assert.False(t, sink.Ready())
	assert.False(t, sink.FirstFrame())
	assert.Equal(t, uint64(0), sink.Packets())

	var fired bool
	sink.OnReady(func() { fired = true })
	assert.False(t, fired, "callback must wait for new metadata")
}
