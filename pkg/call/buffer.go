package call

import (
	"errors"
	"log/slog"

	"github.com/paircall/paircall/pkg/engine"
	"github.com/paircall/paircall/pkg/signal"
)

// CandidateBuffer holds remote candidates that cannot be applied yet. The
// optical transport delivers the whole candidate list in the same payload as
// the offer, before the answer side has applied the remote description;
// without buffering every one of those candidates would be rejected.
//
// The buffer is owned by exactly one session and must only be touched from
// that session's event loop.
type CandidateBuffer struct {
	eng     engine.Engine
	applied bool
	pending []signal.Candidate
}

func NewCandidateBuffer(eng engine.Engine) *CandidateBuffer {
	return &CandidateBuffer{eng: eng}
}

// Add forwards the candidate immediately once the remote description is in
// place, and queues it otherwise. Order of arrival is preserved.
func (b *CandidateBuffer) Add(c signal.Candidate) {
	if !b.applied {
		b.pending = append(b.pending, c)
		return
	}
	b.forward(c)
}

// MarkRemoteDescriptionApplied flips the gate and drains the queue in arrival
// order.
func (b *CandidateBuffer) MarkRemoteDescriptionApplied() {
	if b.applied {
		return
	}
	b.applied = true
	for _, c := range b.pending {
		b.forward(c)
	}
	b.pending = nil
}

// Applied reports whether the remote description gate is open.
func (b *CandidateBuffer) Applied() bool { return b.applied }

// Pending returns how many candidates are waiting.
func (b *CandidateBuffer) Pending() int { return len(b.pending) }

// forward hands one candidate to the engine. Duplicate rejections are
// expected and swallowed; any other rejection is advisory, a single bad
// candidate never fails the negotiation.
func (b *CandidateBuffer) forward(c signal.Candidate) {
	err := b.eng.AddCandidate(c)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrDuplicateCandidate):
		slog.Debug("ignoring duplicate candidate", "candidate", c.Candidate)
	default:
		slog.Warn("engine rejected candidate", "candidate", c.Candidate, "error", err)
	}
}
