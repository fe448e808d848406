// Package signal defines the negotiation payload exchanged between two call
// parties and the error vocabulary shared by the codec, transports and the
// call session.
package signal

import (
	"fmt"
	"strings"
)

// Kind distinguishes the two sides of a negotiation.
type Kind string

const (
	KindOffer  Kind = "offer"
	KindAnswer Kind = "answer"
)

// Valid reports whether k is one of the two known kinds.
func (k Kind) Valid() bool {
	return k == KindOffer || k == KindAnswer
}

// Candidate is a connectivity-path descriptor produced by the media engine.
// It is opaque to this layer beyond its three fields. The JSON shape matches
// what every peer on the wire expects.
type Candidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// NegotiationPayload is one offer or answer plus the candidates that travel
// with it. Treat values as immutable once constructed; NewPayload copies the
// candidate slice so later appends on the caller side cannot leak in.
type NegotiationPayload struct {
	Kind        Kind        `json:"type"`
	Description string      `json:"sdp"`
	Candidates  []Candidate `json:"iceCandidates,omitempty"`
}

func NewPayload(kind Kind, description string, candidates []Candidate) NegotiationPayload {
	var cp []Candidate
	if len(candidates) > 0 {
		cp = make([]Candidate, len(candidates))
		copy(cp, candidates)
	}
	return NegotiationPayload{Kind: kind, Description: description, Candidates: cp}
}

// Validate checks the structural invariants a decoded payload must satisfy.
func (p NegotiationPayload) Validate() error {
	if !p.Kind.Valid() {
		return Validationf("unknown payload kind %q", p.Kind)
	}
	if strings.TrimSpace(p.Description) == "" {
		return Validationf("payload of kind %q has an empty description", p.Kind)
	}
	for i, c := range p.Candidates {
		if c.Candidate == "" {
			return Validationf("candidate %d has no content", i)
		}
	}
	return nil
}

func (p NegotiationPayload) String() string {
	return fmt.Sprintf("%s (%d bytes sdp, %d candidates)", p.Kind, len(p.Description), len(p.Candidates))
}
