// Package appevents defines the messages the orchestrator publishes for the
// presentation layer, and the bus they travel over. The UI subscribes here
// and nowhere else; it never touches the transports, codec or buffer
// directly.
package appevents

import (
	"github.com/paircall/paircall/pkg/call"
	"github.com/paircall/paircall/pkg/discovery"
	"github.com/paircall/paircall/pkg/engine"
	"github.com/paircall/paircall/pkg/signal"
)

// Message is a marker interface for orchestrator-to-UI messages. The
// unexported method keeps the variant set closed to this package.
type Message interface {
	isMessage()
}

// message can be embedded to satisfy the Message interface.
type message struct{}

func (message) isMessage() {}

// StateChangedMsg reports a call lifecycle transition.
type StateChangedMsg struct {
	message
	State call.State
}

// IncomingCallMsg asks the UI to prompt accept/decline.
type IncomingCallMsg struct {
	message
	PeerID  string
	Payload signal.NegotiationPayload
}

// CallEndedMsg reports a session reaching a terminal state.
type CallEndedMsg struct {
	message
	State  call.State
	Reason string
}

// ConnectivityMsg relays the media engine's connectivity reports.
type ConnectivityMsg struct {
	message
	State engine.ConnState
}

// ErrorMsg surfaces an advisory or fatal error with its category.
type ErrorMsg struct {
	message
	Kind    signal.ErrorKind
	Message string
}

// RegisteredMsg reports the relay registration outcome.
type RegisteredMsg struct {
	message
	OK bool
}

// CodeReadyMsg carries an encoded payload ready to be shown as a QR symbol.
type CodeReadyMsg struct {
	message
	Code       string
	Simplified bool
	Degraded   bool
}

// PeersUpdatedMsg carries an address-book snapshot.
type PeersUpdatedMsg struct {
	message
	Peers []discovery.Peer
}
