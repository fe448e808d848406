// Package app wires the signaling layer together: it owns zero-or-one active
// call session, binds it to the transport the call arrived on, funnels engine
// and transport events into it, and publishes the event surface the
// presentation layer consumes.
package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	appevents "github.com/paircall/paircall/internal/app_events"
	"github.com/paircall/paircall/pkg/call"
	"github.com/paircall/paircall/pkg/codec"
	"github.com/paircall/paircall/pkg/discovery"
	"github.com/paircall/paircall/pkg/engine"
	"github.com/paircall/paircall/pkg/signal"
	"github.com/paircall/paircall/pkg/transport"
)

// EngineFactory builds a fresh media engine for each call attempt.
type EngineFactory func() (engine.Engine, error)

// Config assembles the orchestrator.
type Config struct {
	// LocalID is the identity registered at the relay and announced on the
	// LAN. Calls to this id are rejected as self-calls.
	LocalID string
	// RelayURL is the relay's WebSocket endpoint; empty means optical-only.
	RelayURL string
	Call     call.Config
	Codec    codec.Config
	Engine   engine.Config
}

// Orchestrator is the composition root of the signaling layer. There is no
// ambient global: whoever starts the application owns this value.
type Orchestrator struct {
	cfg       Config
	bus       *appevents.Bus
	newEngine EngineFactory

	codec   *codec.Codec
	optical *transport.Optical

	mu        sync.Mutex
	relay     *transport.Relay
	session   *call.Session
	sessionTr transport.Transport

	discoveryOnce sync.Once
}

// New builds an orchestrator. A nil factory means production pion engines.
func New(cfg Config, newEngine EngineFactory) *Orchestrator {
	if newEngine == nil {
		engCfg := cfg.Engine
		newEngine = func() (engine.Engine, error) { return engine.NewPionEngine(engCfg) }
	}

	o := &Orchestrator{
		cfg:       cfg,
		bus:       appevents.NewBus(),
		newEngine: newEngine,
	}
	o.codec = codec.New(cfg.Codec)
	o.optical = transport.NewOptical(o.codec, func(code string, simplified, degraded bool) {
		o.bus.Publish(appevents.CodeReadyMsg{Code: code, Simplified: simplified, Degraded: degraded})
	})
	go o.routeEvents(o.optical)
	return o
}

// Subscribe attaches a UI-scoped subscriber to the event surface.
func (o *Orchestrator) Subscribe(buffer int) (int, <-chan appevents.Message) {
	return o.bus.Subscribe(buffer)
}

// Unsubscribe detaches a subscriber; no message fires into it afterwards.
func (o *Orchestrator) Unsubscribe(id int) { o.bus.Unsubscribe(id) }

// ConnectRelay dials the relay and registers the local identity. The
// registration outcome arrives as a RegisteredMsg.
func (o *Orchestrator) ConnectRelay(ctx context.Context) error {
	if o.cfg.RelayURL == "" {
		return signal.Validationf("no relay URL configured")
	}

	relay, err := transport.DialRelay(ctx, transport.DefaultRelayConfig(o.cfg.RelayURL))
	if err != nil {
		return err
	}
	if err := relay.Register(ctx, o.cfg.LocalID); err != nil {
		relay.Close()
		return err
	}

	o.mu.Lock()
	old := o.relay
	o.relay = relay
	o.mu.Unlock()
	if old != nil {
		old.Close()
	}

	go o.routeEvents(relay)
	return nil
}

// StartCall begins an outbound call to peerID over the relay.
func (o *Orchestrator) StartCall(peerID string) error {
	peerID = strings.TrimSpace(peerID)
	if peerID == "" {
		return o.reject(signal.Validationf("empty peer id"))
	}
	if peerID == o.cfg.LocalID {
		return o.reject(signal.Validationf("cannot call yourself"))
	}

	o.mu.Lock()
	relay := o.relay
	o.mu.Unlock()
	if relay == nil || !relay.Ready() {
		return o.reject(signal.Transportf(nil, "relay not connected"))
	}
	return o.startOutbound(relay, peerID)
}

// GenerateCode begins an outbound call over the optical channel: the offer is
// gathered eagerly and published as a CodeReadyMsg.
func (o *Orchestrator) GenerateCode() error {
	return o.startOutbound(o.optical, transport.OpticalPeerID)
}

// ScanCode feeds a scanned string into the optical transport. A decodable
// offer prompts an incoming call; an answer advances the active session.
func (o *Orchestrator) ScanCode(raw string) error {
	if err := o.optical.Scan(raw); err != nil {
		o.bus.Publish(appevents.ErrorMsg{Kind: signal.KindOf(err), Message: err.Error()})
		return err
	}
	return nil
}

// Accept answers the pending inbound call.
func (o *Orchestrator) Accept() error {
	s := o.active()
	if s == nil {
		return o.reject(signal.Validationf("no call to accept"))
	}
	s.Accept()
	return nil
}

// Decline refuses the pending inbound call. The local transition always
// succeeds, whether or not the notice reaches the peer.
func (o *Orchestrator) Decline() error {
	s := o.active()
	if s == nil {
		return o.reject(signal.Validationf("no call to decline"))
	}
	s.Decline()
	return nil
}

// End hangs up the active call.
func (o *Orchestrator) End() error {
	s := o.active()
	if s == nil {
		return o.reject(signal.Validationf("no active call"))
	}
	s.End()
	return nil
}

// StartDiscovery announces the local identity on the LAN and streams
// address-book snapshots to the UI until the context ends. Only the first
// call starts anything; relay reconnects may call it again freely.
func (o *Orchestrator) StartDiscovery(ctx context.Context, adapter discovery.Adapter) {
	o.discoveryOnce.Do(func() {
		go func() {
			if err := adapter.Announce(ctx, o.cfg.LocalID); err != nil {
				slog.Warn("address-book announce stopped", "error", err)
			}
		}()
		go func() {
			for res := range adapter.Browse(ctx) {
				if res.Err != nil {
					o.bus.Publish(appevents.ErrorMsg{Kind: signal.ErrTransport, Message: res.Err.Error()})
					continue
				}
				o.bus.Publish(appevents.PeersUpdatedMsg{Peers: res.Peers})
			}
		}()
	})
}

// Close tears down the active session and both transports.
func (o *Orchestrator) Close() error {
	if s := o.active(); s != nil {
		s.End()
	}
	o.mu.Lock()
	relay := o.relay
	o.relay = nil
	o.mu.Unlock()
	if relay != nil {
		relay.Close()
	}
	return o.optical.Close()
}

// --- internals ---

func (o *Orchestrator) startOutbound(tr transport.Transport, peerID string) error {
	o.mu.Lock()
	if o.busyLocked() {
		o.mu.Unlock()
		return o.reject(signal.Validationf("busy: a call is already in progress"))
	}
	eng, err := o.newEngine()
	if err != nil {
		o.mu.Unlock()
		return o.reject(signal.Negotiationf(err, "cannot start media engine"))
	}
	s := call.Outbound(o.cfg.Call, eng, tr, peerID, o.notifier())
	o.session = s
	o.sessionTr = tr
	o.mu.Unlock()

	slog.Info("outbound call started", "peer", peerID, "session", s.ID())
	return nil
}

// routeEvents funnels one transport's events towards the single active
// session. Events for a torn-down session are dropped here, which is what
// keeps a stale transport from feeding a new session.
func (o *Orchestrator) routeEvents(tr transport.Transport) {
	for ev := range tr.Events() {
		switch ev := ev.(type) {
		case transport.Registered:
			o.bus.Publish(appevents.RegisteredMsg{OK: ev.OK})
		case transport.IncomingOffer:
			o.handleIncomingOffer(tr, ev)
		default:
			o.routeToSession(tr, ev)
		}
	}
}

func (o *Orchestrator) routeToSession(tr transport.Transport, ev transport.Event) {
	o.mu.Lock()
	s, bound := o.session, o.sessionTr
	o.mu.Unlock()

	if s == nil || bound != tr {
		if errEv, ok := ev.(transport.Errored); ok {
			o.bus.Publish(appevents.ErrorMsg{Kind: signal.KindOf(errEv.Err), Message: errEv.Err.Error()})
			return
		}
		slog.Debug("dropping transport event with no session bound", "event", ev)
		return
	}
	s.HandleTransportEvent(ev)
}

func (o *Orchestrator) handleIncomingOffer(tr transport.Transport, ev transport.IncomingOffer) {
	o.mu.Lock()
	if o.busyLocked() {
		o.mu.Unlock()
		slog.Info("rejecting incoming call, busy", "from", ev.From)
		go tr.Decline(context.Background(), ev.From)
		return
	}
	eng, err := o.newEngine()
	if err != nil {
		o.mu.Unlock()
		o.bus.Publish(appevents.ErrorMsg{Kind: signal.ErrNegotiation, Message: err.Error()})
		return
	}
	s, err := call.Inbound(o.cfg.Call, eng, tr, ev.From, ev.Payload, o.notifier())
	if err != nil {
		o.mu.Unlock()
		eng.Close()
		o.bus.Publish(appevents.ErrorMsg{Kind: signal.KindOf(err), Message: err.Error()})
		return
	}
	o.session = s
	o.sessionTr = tr
	o.mu.Unlock()

	o.bus.Publish(appevents.IncomingCallMsg{PeerID: ev.From, Payload: ev.Payload})
}

// busyLocked reports whether a non-terminal session is active. Callers hold
// o.mu.
func (o *Orchestrator) busyLocked() bool {
	if o.session == nil {
		return false
	}
	if o.session.State().Terminal() {
		o.session = nil
		o.sessionTr = nil
		return false
	}
	return true
}

func (o *Orchestrator) active() *call.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busyLocked() {
		return o.session
	}
	return nil
}

func (o *Orchestrator) notifier() call.Notifier {
	return call.Notifier{
		StateChanged: func(st call.State) {
			o.bus.Publish(appevents.StateChangedMsg{State: st})
		},
		Connectivity: func(cs engine.ConnState) {
			o.bus.Publish(appevents.ConnectivityMsg{State: cs})
		},
		Advisory: func(err error) {
			o.bus.Publish(appevents.ErrorMsg{Kind: signal.KindOf(err), Message: err.Error()})
		},
		Terminal: func(id uuid.UUID, st call.State, reason string) {
			o.clearSessionIf(id)
			o.bus.Publish(appevents.CallEndedMsg{State: st, Reason: reason})
		},
	}
}

// clearSessionIf releases the session binding only while it still belongs to
// the terminating session. busyLocked may already have replaced a terminal
// session with a new call; a late Terminal callback must not clobber that.
func (o *Orchestrator) clearSessionIf(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != nil && o.session.ID() == id {
		o.session = nil
		o.sessionTr = nil
	}
}

func (o *Orchestrator) reject(err *signal.Error) error {
	o.bus.Publish(appevents.ErrorMsg{Kind: err.Kind, Message: err.Msg})
	return err
}
