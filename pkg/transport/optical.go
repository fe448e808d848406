package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/paircall/paircall/pkg/codec"
	"github.com/paircall/paircall/pkg/signal"
)

// OpticalPeerID stands in for the counterpart's identity on the optical
// channel, which has no notion of named endpoints.
const OpticalPeerID = "optical-peer"

// placeholderSDP is the last-resort description emitted when even the
// simplified payload cannot fit the symbol. It keeps the optical channel from
// going silent; it is not a negotiation success path.
const placeholderSDP = "v=0\r\no=- 0 0 IN IP4 0.0.0.0\r\ns=-\r\nt=0 0"

// DisplayFunc renders an encoded payload for visual capture. Simplified is
// true when lossy degradation was applied, degraded when only the placeholder
// could be shown.
type DisplayFunc func(code string, simplified, degraded bool)

// Optical is the one-shot transport: Send means "render the encoded payload
// for scanning", receiving means feeding a scanned string into Scan. There is
// no persistent connection and no delivery acknowledgement.
type Optical struct {
	codec   *codec.Codec
	display DisplayFunc

	mu     sync.Mutex
	closed bool
	events chan Event
}

var _ Transport = (*Optical)(nil)

func NewOptical(c *codec.Codec, display DisplayFunc) *Optical {
	if display == nil {
		display = func(string, bool, bool) {}
	}
	return &Optical{
		codec:   c,
		display: display,
		events:  make(chan Event, 16),
	}
}

// Send encodes the payload and hands it to the display callback. Callers must
// treat it as fire-and-forget: there is no way to know whether the peer ever
// scans the code.
func (o *Optical) Send(ctx context.Context, peerID string, p signal.NegotiationPayload) error {
	encoded, simplified, err := o.codec.Encode(p)
	if err == nil {
		o.display(encoded, simplified, false)
		return nil
	}

	slog.Error("payload does not fit optical capacity, showing placeholder", "payload", p.String(), "error", err)
	fallback := signal.NewPayload(p.Kind, placeholderSDP, nil)
	encoded, _, ferr := o.codec.Encode(fallback)
	if ferr != nil {
		return signal.Transportf(errors.Join(err, ferr), "encode optical payload")
	}
	o.display(encoded, false, true)
	return nil
}

// SendCandidate is meaningless on a single-shot channel; candidates travel
// inside the payload.
func (o *Optical) SendCandidate(ctx context.Context, peerID string, c signal.Candidate) error {
	return ErrNotStreaming
}

// Decline has nobody to notify; the caller's local state transition is all
// that happens.
func (o *Optical) Decline(ctx context.Context, peerID string) error { return nil }

// Scan ingests a scanned string. A decodable offer or answer becomes the
// corresponding event; garbage is reported and discarded without touching any
// session state.
func (o *Optical) Scan(raw string) error {
	p, err := o.codec.Decode(raw)
	if err != nil {
		o.emit(Errored{Err: err})
		return err
	}
	switch p.Kind {
	case signal.KindOffer:
		o.emit(IncomingOffer{From: OpticalPeerID, Payload: p})
	case signal.KindAnswer:
		o.emit(Answered{Payload: p})
	}
	return nil
}

func (o *Optical) Events() <-chan Event { return o.events }

// Ready is always true: showing a code needs no connection.
func (o *Optical) Ready() bool { return true }

func (o *Optical) CandidatePolicy() CandidatePolicy { return PolicyEmbed }

func (o *Optical) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.events)
	}
	return nil
}

func (o *Optical) emit(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		slog.Debug("dropping optical event after close")
		return
	}
	select {
	case o.events <- ev:
	default:
		slog.Warn("optical event dropped, consumer not draining")
	}
}
