package domain

import "errors"

var (
	ErrChannelClosed       = errors.New("signaling channel closed")
	ErrSessionClosed       = errors.New("session closed")
	ErrNoRemoteDescription = errors.New("remote description not set")
	ErrUnknownMessageKind  = errors.New("unknown message kind")
	ErrMalformedMessage    = errors.New("malformed message")
	ErrNoVideoTrack        = errors.New("no video track received")
	ErrNegotiationInFlight = errors.New("negotiation already in flight")
)
