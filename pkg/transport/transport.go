// Package transport delivers negotiation payloads and call-lifecycle events
// between two logical endpoints. Two implementations exist: Relay, a
// persistent WebSocket connection to a message-forwarding server, and
// Optical, a one-shot human-mediated channel over a scannable code. Both
// expose the same event vocabulary so the call session never cares which one
// it is driving.
package transport

import (
	"context"
	"errors"

	"github.com/paircall/paircall/pkg/signal"
)

// ErrNotStreaming is returned by SendCandidate on transports whose candidate
// policy embeds the whole list in the payload.
var ErrNotStreaming = errors.New("transport does not stream candidates")

// CandidatePolicy says how locally gathered candidates reach the peer.
type CandidatePolicy int

const (
	// PolicyEmbed gathers eagerly and ships every candidate inside the single
	// payload. Used by Optical, which gets exactly one round-trip shot.
	PolicyEmbed CandidatePolicy = iota
	// PolicyStream ships the payload immediately and trickles candidates as
	// follow-up messages. Used by Relay.
	PolicyStream
)

// Event is the common vocabulary both transports emit. The unexported marker
// keeps the variant set closed to this package.
type Event interface{ isTransportEvent() }

type event struct{}

func (event) isTransportEvent() {}

// Registered reports the outcome of a relay identity registration.
type Registered struct {
	event
	OK bool
}

// IncomingOffer carries a peer's offer payload.
type IncomingOffer struct {
	event
	From    string
	Payload signal.NegotiationPayload
}

// Answered carries the peer's answer payload.
type Answered struct {
	event
	Payload signal.NegotiationPayload
}

// RemoteCandidate carries one trickled candidate (streaming transports only).
type RemoteCandidate struct {
	event
	Candidate signal.Candidate
}

// Declined reports the peer refusing the call.
type Declined struct {
	event
	From string
}

// Errored reports an advisory transport-level problem. The session decides
// whether it is fatal.
type Errored struct {
	event
	Err error
}

// Transport is one delivery channel for negotiation payloads.
type Transport interface {
	// Send delivers an offer or answer payload to the peer. On Optical this
	// is fire-and-forget: rendering the code counts as sent.
	Send(ctx context.Context, peerID string, p signal.NegotiationPayload) error
	// SendCandidate trickles a single candidate (PolicyStream transports).
	SendCandidate(ctx context.Context, peerID string, c signal.Candidate) error
	// Decline notifies the peer the call was refused. Best effort; local
	// state never depends on it succeeding.
	Decline(ctx context.Context, peerID string) error

	Events() <-chan Event
	Ready() bool
	CandidatePolicy() CandidatePolicy
	Close() error
}
