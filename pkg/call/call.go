// Package call owns one call attempt: the session state machine, the
// candidate buffer that absorbs the candidates-before-description race, and
// the per-transport candidate policies.
package call

import "time"

// Role says which side of the negotiation this session is.
type Role int

const (
	Caller Role = iota
	Callee
)

func (r Role) String() string {
	if r == Caller {
		return "caller"
	}
	return "callee"
}

// State is the session's position in the call lifecycle.
type State int

const (
	Idle State = iota
	Creating
	AwaitingRemote
	Negotiating
	Connected
	Ended
	Failed
	Declined
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Creating:
		return "creating"
	case AwaitingRemote:
		return "awaiting-remote"
	case Negotiating:
		return "negotiating"
	case Connected:
		return "connected"
	case Ended:
		return "ended"
	case Failed:
		return "failed"
	case Declined:
		return "declined"
	default:
		return "unknown"
	}
}

// Terminal reports whether the session is finished; a new call may start once
// the active session is terminal.
func (s State) Terminal() bool {
	return s == Ended || s == Failed || s == Declined
}

// Config bounds the session's waits.
type Config struct {
	// PendingCallTimeout caps how long an outbound call may sit before
	// reaching Negotiating.
	PendingCallTimeout time.Duration
	// DisconnectGrace is how long a Disconnected connectivity report may
	// stand before it escalates to Failed on its own.
	DisconnectGrace time.Duration
	// GatherWait caps the eager candidate-gathering phase on embed-policy
	// transports, in case the engine never reports gathering complete.
	GatherWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		PendingCallTimeout: 30 * time.Second,
		DisconnectGrace:    15 * time.Second,
		GatherWait:         3 * time.Second,
	}
}
