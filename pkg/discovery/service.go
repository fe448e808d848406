// Package discovery is the LAN address book: peers announce the identity they
// are reachable under at the relay, and browse for other callable peers.
package discovery

import "context"

const (
	// ServiceType is the mDNS service callable peers announce under.
	ServiceType = "_paircall._tcp"
	// Domain is the mDNS domain used for announcements.
	Domain = "local"
)

// Peer is one callable identity seen on the local network.
type Peer struct {
	// ID is the identity the peer registered at the relay.
	ID string
	// Instance is the mDNS instance name.
	Instance string
}

// Result carries either a peer-list snapshot or a browse error.
type Result struct {
	Peers []Peer
	Err   error
}

// Adapter announces the local identity and browses for remote ones.
type Adapter interface {
	Announce(ctx context.Context, localID string) error
	Browse(ctx context.Context) <-chan Result
}
