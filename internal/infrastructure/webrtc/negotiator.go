package webrtc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "platewatch/pkg/errors"

	"platewatch/internal/infrastructure/signal"
)

// Negotiator is the transport a session negotiates over. A synchronous
// transport returns the answer directly from Negotiate; an asynchronous
// one returns "" and the answer arrives later via Session.HandleAnswer.
type Negotiator interface {
	Negotiate(ctx context.Context, offerSDP string) (answerSDP string, err error)

	// SendCandidate forwards one local ICE candidate to the remote side.
	SendCandidate(candidate string) error

	// Trickle reports whether the transport carries candidates
	// incrementally. A non-trickle session gathers before offering.
	Trickle() bool

	Close() error
}

// HTTPNegotiator negotiates over a synchronous offer/answer POST: the full
// offer goes up, the full answer comes back in the response body. The
// source name selects which variant of the stream the backend serves.
type HTTPNegotiator struct {
	url         string
	credentials string
	source      string
	client      *http.Client
}

type sdpPayload struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

func NewHTTPNegotiator(endpoint, credentials, source string) *HTTPNegotiator {
	return &HTTPNegotiator{
		url:         endpoint,
		credentials: credentials,
		source:      source,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *HTTPNegotiator) requestURL() string {
	if n.source == "" {
		return n.url
	}
	sep := "?"
	if strings.Contains(n.url, "?") {
		sep = "&"
	}
	return n.url + sep + "src=" + url.QueryEscape(n.source)
}

func (n *HTTPNegotiator) Negotiate(ctx context.Context, offerSDP string) (string, error) {
	body, err := json.Marshal(sdpPayload{SDP: offerSDP, Type: "offer"})
	if err != nil {
		return "", apperrors.NewNegotiation("encode offer", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.requestURL(), bytes.NewReader(body))
	if err != nil {
		return "", apperrors.NewNegotiation("build negotiation request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.credentials != "" {
		user, pass, ok := strings.Cut(n.credentials, ":")
		if ok {
			req.SetBasicAuth(user, pass)
		}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return "", apperrors.NewTransport("negotiation request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", apperrors.NewNegotiation(fmt.Sprintf("negotiation endpoint returned %d", resp.StatusCode), nil)
	}

	var answer sdpPayload
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return "", apperrors.NewProtocol("decode answer", err)
	}
	if answer.SDP == "" {
		return "", apperrors.NewProtocol("answer missing sdp", nil)
	}
	return answer.SDP, nil
}

// SendCandidate is a no-op: the synchronous transport carries a complete,
// pre-gathered offer.
func (n *HTTPNegotiator) SendCandidate(string) error { return nil }

func (n *HTTPNegotiator) Trickle() bool { return false }

func (n *HTTPNegotiator) Close() error { return nil }

// SignalNegotiator negotiates over a live signaling channel: the offer and
// local candidates are pushed as frames, the answer and remote candidates
// come back through the channel's handlers. A negotiator that owns its
// channel closes it on Close; a shared channel is left to its owner.
type SignalNegotiator struct {
	client *signal.Client
	owned  bool
}

func NewSignalNegotiator(client *signal.Client, owned bool) *SignalNegotiator {
	return &SignalNegotiator{client: client, owned: owned}
}

func (n *SignalNegotiator) Negotiate(_ context.Context, offerSDP string) (string, error) {
	if err := n.client.Send(signal.Message{Kind: signal.KindOffer, SDP: offerSDP}); err != nil {
		return "", err
	}
	return "", nil
}

func (n *SignalNegotiator) SendCandidate(candidate string) error {
	return n.client.Send(signal.Message{Kind: signal.KindCandidate, Candidate: candidate})
}

func (n *SignalNegotiator) Trickle() bool { return true }

func (n *SignalNegotiator) Close() error {
	if n.owned {
		n.client.Close()
	}
	return nil
}
