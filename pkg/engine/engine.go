// Package engine abstracts the real-time media stack. The call layer only
// needs an opaque unit that produces descriptions and candidates, accepts the
// remote side's, and reports connectivity over time; PionEngine is the
// production implementation.
package engine

import (
	"context"
	"errors"

	"github.com/paircall/paircall/pkg/signal"
)

// ErrDuplicateCandidate reports a candidate that was already handed to the
// engine. Re-adds legitimately occur and callers are expected to swallow this.
var ErrDuplicateCandidate = errors.New("candidate already added")

// ConnState is the engine's view of the connection, in escalating order.
type ConnState int

const (
	StateNew ConnState = iota
	StateChecking
	StateConnected
	StateCompleted
	StateDisconnected
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateChecking:
		return "checking"
	case StateConnected:
		return "connected"
	case StateCompleted:
		return "completed"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Established reports whether s means the peers can exchange media.
func (s ConnState) Established() bool {
	return s == StateConnected || s == StateCompleted
}

// Engine is one call attempt's media stack. Callbacks fire from the engine's
// own background contexts; register them before triggering any operation that
// could produce events.
type Engine interface {
	// CreateOffer produces the local offer description and installs it as the
	// local description, which starts candidate gathering.
	CreateOffer(ctx context.Context) (string, error)
	// CreateAnswer produces the local answer description; the remote offer
	// must have been applied first.
	CreateAnswer(ctx context.Context) (string, error)
	// SetRemoteDescription applies the peer's description.
	SetRemoteDescription(ctx context.Context, kind signal.Kind, sdp string) error
	// AddCandidate hands a remote candidate to the engine. A repeated exact
	// candidate returns ErrDuplicateCandidate.
	AddCandidate(c signal.Candidate) error

	OnCandidate(fn func(signal.Candidate))
	OnGatheringComplete(fn func())
	OnConnectivityChange(fn func(ConnState))

	Close() error
}
