package call

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paircall/paircall/pkg/engine"
	"github.com/paircall/paircall/pkg/signal"
	"github.com/paircall/paircall/pkg/transport"
)

// Notifier carries the session's upward-facing callbacks. All fields are
// optional. Callbacks fire from the session's event loop; do not call back
// into the session synchronously from them.
type Notifier struct {
	// StateChanged fires on every lifecycle transition.
	StateChanged func(s State)
	// Connectivity relays the engine's connectivity reports for status text.
	Connectivity func(cs engine.ConnState)
	// Advisory surfaces absorbed, non-fatal errors.
	Advisory func(err error)
	// Terminal fires exactly once when the session reaches a terminal state.
	// It carries the session id so owners tracking a current session can
	// ignore a late callback from an already-replaced one.
	Terminal func(id uuid.UUID, s State, reason string)
}

// Session is the state machine owning one call attempt. Every input, whether
// an engine callback, a transport event or a user intent, is funnelled
// through a single event loop, so the transition logic itself never runs
// concurrently.
type Session struct {
	id     uuid.UUID
	role   Role
	peerID string
	cfg    Config

	eng    engine.Engine
	tr     transport.Transport
	notify Notifier
	buffer *CandidateBuffer

	// loop-owned state below; only touched from run().
	state         State
	localPayload  *signal.NegotiationPayload
	remotePayload *signal.NegotiationPayload

	draftKind       signal.Kind
	draftSDP        string
	draftCandidates []signal.Candidate
	payloadSent     bool

	pendingTimer *time.Timer
	graceTimer   *time.Timer
	gatherTimer  *time.Timer
	torndown     bool

	stateMu sync.RWMutex // guards reads of state from outside the loop

	inbox     chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// Outbound creates a caller session and starts negotiating towards peerID
// over the given transport. Peer-id validation (self-call, busy) belongs to
// the orchestrator and has already happened.
func Outbound(cfg Config, eng engine.Engine, tr transport.Transport, peerID string, n Notifier) *Session {
	s := newSession(cfg, eng, tr, Caller, peerID, n)
	s.post(s.startOutbound)
	return s
}

// Inbound creates a callee session for a received offer. The caller's
// candidates go straight into the buffer; they are applied after Accept.
func Inbound(cfg Config, eng engine.Engine, tr transport.Transport, from string, offer signal.NegotiationPayload, n Notifier) (*Session, error) {
	if offer.Kind != signal.KindOffer {
		return nil, signal.Validationf("inbound session needs an offer, got %q", offer.Kind)
	}
	s := newSession(cfg, eng, tr, Callee, from, n)
	s.post(func() {
		p := offer
		s.remotePayload = &p
		for _, c := range p.Candidates {
			s.buffer.Add(c)
		}
		s.setState(AwaitingRemote)
	})
	return s, nil
}

func newSession(cfg Config, eng engine.Engine, tr transport.Transport, role Role, peerID string, n Notifier) *Session {
	s := &Session{
		id:     uuid.New(),
		role:   role,
		peerID: peerID,
		cfg:    cfg,
		eng:    eng,
		tr:     tr,
		notify: n,
		buffer: NewCandidateBuffer(eng),
		state:  Idle,
		inbox:  make(chan func(), 32),
		done:   make(chan struct{}),
	}

	// Engine callbacks fire on the engine's own threads; they only ever post
	// into this session's loop. The engine instance is owned by this session,
	// so a torn-down session can never receive a previous session's events.
	eng.OnCandidate(func(c signal.Candidate) {
		s.post(func() { s.onLocalCandidate(c) })
	})
	eng.OnGatheringComplete(func() {
		s.post(s.onGatheringComplete)
	})
	eng.OnConnectivityChange(func(cs engine.ConnState) {
		s.post(func() { s.onConnectivity(cs) })
	})

	go s.run()
	return s
}

func (s *Session) ID() uuid.UUID  { return s.id }
func (s *Session) Role() Role     { return s.role }
func (s *Session) PeerID() string { return s.peerID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Accept answers an inbound offer: apply it, produce the answer, flush the
// candidate buffer and send.
func (s *Session) Accept() { s.post(s.accept) }

// Decline refuses the call. It always succeeds locally, whether or not the
// notice reaches the peer.
func (s *Session) Decline() { s.post(s.decline) }

// End hangs up an established call.
func (s *Session) End() { s.post(s.end) }

// HandleTransportEvent routes one event from the bound transport into the
// session. The orchestrator is responsible for only routing events from the
// transport this session owns.
func (s *Session) HandleTransportEvent(ev transport.Event) {
	s.post(func() { s.onTransportEvent(ev) })
}

// Abort tears the session down from outside, e.g. when the orchestrator
// times a pending call out at a coarser level or the process shuts down.
func (s *Session) Abort(reason string) {
	s.post(func() { s.fail(signal.Connectivityf("%s", reason)) })
}

func (s *Session) run() {
	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.done:
			return
		}
	}
}

// post schedules fn on the session loop; it is a no-op once the session is
// torn down, which is exactly the stale-event guard the teardown needs.
func (s *Session) post(fn func()) {
	select {
	case <-s.done:
	case s.inbox <- fn:
	}
}

// --- outbound flow ---

func (s *Session) startOutbound() {
	s.setState(Creating)
	s.pendingTimer = time.AfterFunc(s.cfg.PendingCallTimeout, func() {
		s.post(s.onPendingTimeout)
	})

	sdp, err := s.eng.CreateOffer(context.Background())
	if err != nil {
		s.fail(signal.Negotiationf(err, "cannot create offer"))
		return
	}
	s.draftKind = signal.KindOffer
	s.draftSDP = sdp
	s.beginSendPhase()
}

func (s *Session) accept() {
	if s.role != Callee || s.state != AwaitingRemote {
		slog.Warn("accept ignored", "session", s.id, "role", s.role, "state", s.state)
		return
	}

	offer := *s.remotePayload
	if err := s.eng.SetRemoteDescription(context.Background(), signal.KindOffer, offer.Description); err != nil {
		s.fail(signal.Negotiationf(err, "cannot apply remote offer"))
		return
	}
	sdp, err := s.eng.CreateAnswer(context.Background())
	if err != nil {
		s.fail(signal.Negotiationf(err, "cannot create answer"))
		return
	}
	s.buffer.MarkRemoteDescriptionApplied()

	s.draftKind = signal.KindAnswer
	s.draftSDP = sdp
	s.beginSendPhase()
}

// beginSendPhase either ships the draft payload immediately (streaming
// transports) or holds it open while the engine gathers candidates (embed
// transports, which get a single shot).
func (s *Session) beginSendPhase() {
	if s.tr.CandidatePolicy() == transport.PolicyEmbed {
		s.gatherTimer = time.AfterFunc(s.cfg.GatherWait, func() {
			s.post(s.onGatheringComplete)
		})
		return
	}
	s.sendDraft()
}

func (s *Session) onGatheringComplete() {
	if s.payloadSent || s.state.Terminal() {
		return
	}
	if s.tr.CandidatePolicy() != transport.PolicyEmbed {
		return
	}
	if s.draftSDP == "" {
		// Gathering finished before the description did; sendDraft happens
		// when the draft is ready.
		return
	}
	s.stopTimer(&s.gatherTimer)
	s.sendDraft()
}

func (s *Session) sendDraft() {
	p := signal.NewPayload(s.draftKind, s.draftSDP, s.draftCandidates)
	s.localPayload = &p
	s.payloadSent = true

	if p.Kind == signal.KindOffer {
		s.setState(AwaitingRemote)
	} else {
		s.setState(Negotiating)
	}

	// Transport sends may block on network I/O; never from the loop.
	go func() {
		err := s.tr.Send(context.Background(), s.peerID, p)
		s.post(func() { s.onSendResult(p.Kind, err) })
	}()
}

func (s *Session) onSendResult(kind signal.Kind, err error) {
	if err == nil || s.state.Terminal() {
		return
	}
	// The payload is the only road forward; failing to send it fails the
	// session.
	s.fail(signal.Transportf(err, "cannot deliver %s", kind))
}

// --- candidate handling ---

func (s *Session) onLocalCandidate(c signal.Candidate) {
	if s.state.Terminal() {
		return
	}
	if !s.payloadSent {
		s.draftCandidates = append(s.draftCandidates, c)
		return
	}
	if s.tr.CandidatePolicy() == transport.PolicyStream {
		go func() {
			if err := s.tr.SendCandidate(context.Background(), s.peerID, c); err != nil {
				s.post(func() { s.advisory(signal.Transportf(err, "trickle candidate")) })
			}
		}()
		return
	}
	// Embed policy after the single shot: nothing left to carry it.
	slog.Debug("dropping late candidate, payload already shown", "session", s.id)
}

// --- transport events ---

func (s *Session) onTransportEvent(ev transport.Event) {
	switch ev := ev.(type) {
	case transport.Answered:
		s.onAnswer(ev.Payload)
	case transport.RemoteCandidate:
		if !s.state.Terminal() {
			s.buffer.Add(ev.Candidate)
		}
	case transport.Declined:
		s.onPeerDeclined()
	case transport.IncomingOffer:
		// A second offer mid-call is out of order; not fatal.
		slog.Warn("ignoring offer in active session", "session", s.id, "state", s.state, "from", ev.From)
	case transport.Errored:
		s.advisory(ev.Err)
	case transport.Registered:
		// Registration belongs to the orchestrator's lifecycle, not a call.
	}
}

func (s *Session) onAnswer(p signal.NegotiationPayload) {
	if s.role != Caller || s.state != AwaitingRemote {
		slog.Warn("ignoring answer", "session", s.id, "role", s.role, "state", s.state)
		return
	}
	pp := p
	s.remotePayload = &pp

	if err := s.eng.SetRemoteDescription(context.Background(), signal.KindAnswer, p.Description); err != nil {
		s.fail(signal.Negotiationf(err, "cannot apply remote answer"))
		return
	}
	s.buffer.MarkRemoteDescriptionApplied()
	for _, c := range p.Candidates {
		s.buffer.Add(c)
	}
	s.stopTimer(&s.pendingTimer)
	s.setState(Negotiating)
}

func (s *Session) onPeerDeclined() {
	switch s.state {
	case Creating, AwaitingRemote:
		s.terminal(Declined, "declined by peer")
	case Negotiating, Connected:
		s.terminal(Ended, "peer hung up")
	}
}

// --- user intents ---

func (s *Session) decline() {
	if s.state.Terminal() {
		return
	}
	peer := s.peerID
	tr := s.tr
	go func() {
		// Best effort; the local transition below happens regardless.
		if err := tr.Decline(context.Background(), peer); err != nil {
			slog.Warn("decline notice failed", "peer", peer, "error", err)
		}
	}()

	if s.state == Creating || s.state == AwaitingRemote {
		s.terminal(Declined, "declined locally")
	} else {
		s.terminal(Ended, "hung up")
	}
}

func (s *Session) end() {
	if s.state.Terminal() {
		return
	}
	peer := s.peerID
	tr := s.tr
	go func() {
		if err := tr.Decline(context.Background(), peer); err != nil {
			slog.Warn("hang-up notice failed", "peer", peer, "error", err)
		}
	}()
	s.terminal(Ended, "hung up")
}

// --- connectivity ---

func (s *Session) onConnectivity(cs engine.ConnState) {
	if s.state.Terminal() {
		return
	}
	if s.notify.Connectivity != nil {
		s.notify.Connectivity(cs)
	}

	switch {
	case cs.Established():
		s.stopTimer(&s.graceTimer)
		if s.state == Negotiating {
			s.stopTimer(&s.pendingTimer)
			s.setState(Connected)
		}
	case cs == engine.StateFailed:
		s.fail(signal.Connectivityf("media connectivity failed"))
	case cs == engine.StateDisconnected:
		// Reported upward, escalated only if the grace period elapses with no
		// recovery and no engine-reported Failed in between.
		s.advisory(signal.Connectivityf("connection interrupted"))
		if s.graceTimer == nil {
			s.graceTimer = time.AfterFunc(s.cfg.DisconnectGrace, func() {
				s.post(s.onGraceElapsed)
			})
		}
	}
}

func (s *Session) onGraceElapsed() {
	if s.state.Terminal() {
		return
	}
	s.fail(signal.Connectivityf("connection lost for more than %s", s.cfg.DisconnectGrace))
}

func (s *Session) onPendingTimeout() {
	switch s.state {
	case Creating, AwaitingRemote:
		s.fail(signal.Connectivityf("no answer within %s", s.cfg.PendingCallTimeout))
	}
}

// --- terminal handling ---

func (s *Session) advisory(err error) {
	slog.Warn("session advisory", "session", s.id, "error", err)
	if s.notify.Advisory != nil {
		s.notify.Advisory(err)
	}
}

func (s *Session) fail(err error) {
	if s.state.Terminal() {
		return
	}
	slog.Error("session failed", "session", s.id, "peer", s.peerID, "error", err)
	s.terminal(Failed, err.Error())
}

// terminal moves to a terminal state and releases resources exactly once.
func (s *Session) terminal(st State, reason string) {
	if s.torndown {
		return
	}
	s.torndown = true

	s.stopTimer(&s.pendingTimer)
	s.stopTimer(&s.graceTimer)
	s.stopTimer(&s.gatherTimer)

	s.setState(st)
	if err := s.eng.Close(); err != nil {
		slog.Warn("engine close", "session", s.id, "error", err)
	}
	if s.notify.Terminal != nil {
		s.notify.Terminal(s.id, st, reason)
	}
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	if s.state == st {
		s.stateMu.Unlock()
		return
	}
	prev := s.state
	s.state = st
	s.stateMu.Unlock()

	slog.Info("call state", "session", s.id, "role", s.role, "from", prev.String(), "to", st.String())
	if s.notify.StateChanged != nil {
		s.notify.StateChanged(st)
	}
}

func (s *Session) stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s -> %s, %s)", s.id, s.role, s.peerID, s.State())
}
