package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/paircall/paircall/pkg/signal"
)

// Relay wire events. Each WebSocket message is an envelope {event, data};
// unknown events and malformed data produce advisory decode errors, never a
// crash.
const (
	evRegister   = "register"
	evRegistered = "registered"
	evCall       = "call"
	evAnswer     = "answer"
	evCandidate  = "candidate"
	evDecline    = "decline"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type registerMsg struct {
	UserID string `json:"userId"`
}

type registeredMsg struct {
	Success bool `json:"success"`
}

type callMsg struct {
	To            string             `json:"to"`
	From          string             `json:"from"`
	Offer         string             `json:"offer"`
	ICECandidates []signal.Candidate `json:"iceCandidates"`
}

type answerMsg struct {
	To            string             `json:"to"`
	From          string             `json:"from"`
	Answer        string             `json:"answer"`
	ICECandidates []signal.Candidate `json:"iceCandidates"`
}

type candidateMsg struct {
	To        string           `json:"to"`
	From      string           `json:"from"`
	Candidate signal.Candidate `json:"candidate"`
}

type declineMsg struct {
	To   string `json:"to"`
	From string `json:"from"`
}

// RelayConfig configures the relay client.
type RelayConfig struct {
	// URL is the relay's WebSocket endpoint, e.g. wss://relay.example.com/ws.
	URL string
	// Retry bounds send attempts over a flaky connection.
	Retry RetryPolicy
	// EventBuffer sizes the outbound event channel.
	EventBuffer int
}

func DefaultRelayConfig(url string) RelayConfig {
	return RelayConfig{URL: url, Retry: DefaultRetryPolicy(), EventBuffer: 16}
}

// Relay is the streaming transport: a persistent WebSocket connection to a
// message relay that forwards events between registered identities. The
// connection handle is process-wide state tied to the user's login, not to
// any single call.
type Relay struct {
	cfg  RelayConfig
	conn *websocket.Conn

	writeMu sync.Mutex
	ready   atomic.Bool

	idMu    sync.Mutex
	localID string

	events    chan Event
	closeOnce sync.Once
	done      chan struct{}
}

var _ Transport = (*Relay)(nil)

// DialRelay connects to the relay and starts the read loop. Registration is a
// separate step so callers can reconnect without re-deciding their identity.
func DialRelay(ctx context.Context, cfg RelayConfig) (*Relay, error) {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 16
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, signal.Transportf(err, "dial relay %s", cfg.URL)
	}

	r := &Relay{
		cfg:    cfg,
		conn:   conn,
		events: make(chan Event, cfg.EventBuffer),
		done:   make(chan struct{}),
	}
	r.ready.Store(true)

	go r.readPump()
	return r, nil
}

// Register claims an identity at the relay. The outcome arrives later as a
// Registered event.
func (r *Relay) Register(ctx context.Context, userID string) error {
	if userID == "" {
		return signal.Validationf("empty user id")
	}
	r.idMu.Lock()
	r.localID = userID
	r.idMu.Unlock()

	return r.write(ctx, evRegister, registerMsg{UserID: userID})
}

// LocalID returns the identity registered on this connection, if any.
func (r *Relay) LocalID() string {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	return r.localID
}

func (r *Relay) Send(ctx context.Context, peerID string, p signal.NegotiationPayload) error {
	from := r.LocalID()
	switch p.Kind {
	case signal.KindOffer:
		return r.write(ctx, evCall, callMsg{
			To: peerID, From: from, Offer: p.Description, ICECandidates: p.Candidates,
		})
	case signal.KindAnswer:
		return r.write(ctx, evAnswer, answerMsg{
			To: peerID, From: from, Answer: p.Description, ICECandidates: p.Candidates,
		})
	default:
		return signal.Validationf("cannot send payload of kind %q", p.Kind)
	}
}

func (r *Relay) SendCandidate(ctx context.Context, peerID string, c signal.Candidate) error {
	return r.write(ctx, evCandidate, candidateMsg{To: peerID, From: r.LocalID(), Candidate: c})
}

func (r *Relay) Decline(ctx context.Context, peerID string) error {
	return r.write(ctx, evDecline, declineMsg{To: peerID, From: r.LocalID()})
}

func (r *Relay) Events() <-chan Event { return r.events }

// Ready reflects live connection state; sends while not ready fail fast
// rather than queueing.
func (r *Relay) Ready() bool { return r.ready.Load() }

func (r *Relay) CandidatePolicy() CandidatePolicy { return PolicyStream }

func (r *Relay) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.ready.Store(false)
		close(r.done)
		err = r.conn.Close()
	})
	return err
}

// write marshals an envelope and writes it, retrying within the configured
// budget. A relay that is not ready fails immediately.
func (r *Relay) write(ctx context.Context, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", event, err)
	}
	env := envelope{Event: event, Data: raw}

	var lastErr error
	for attempt := 1; attempt <= r.cfg.Retry.MaxAttempts; attempt++ {
		if !r.Ready() {
			return signal.Transportf(lastErr, "relay not connected")
		}
		if delay := r.cfg.Retry.Delay(attempt); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			case <-r.done:
				return signal.Transportf(lastErr, "relay closed")
			}
		}

		r.writeMu.Lock()
		lastErr = r.conn.WriteJSON(env)
		r.writeMu.Unlock()
		if lastErr == nil {
			return nil
		}
		slog.Warn("relay write failed", "event", event, "attempt", attempt, "error", lastErr)
	}
	return signal.Transportf(lastErr, "send %s after %d attempts", event, r.cfg.Retry.MaxAttempts)
}

// readPump decodes relay frames into transport events until the connection
// drops.
func (r *Relay) readPump() {
	defer func() {
		r.ready.Store(false)
		close(r.events)
	}()

	for {
		_, raw, err := r.conn.ReadMessage()
		if err != nil {
			select {
			case <-r.done: // deliberate Close, not an error
			default:
				r.emit(Errored{Err: signal.Transportf(err, "relay connection lost")})
			}
			return
		}
		if ev, ok := r.decodeFrame(raw); ok {
			r.emit(ev)
		}
	}
}

// decodeFrame validates one wire frame. Malformed frames are reported as
// advisory decode errors and otherwise discarded.
func (r *Relay) decodeFrame(raw []byte) (Event, bool) {
	var env envelope
	if err := strictUnmarshal(raw, &env); err != nil {
		return Errored{Err: signal.Decodef(err, "malformed relay frame")}, true
	}

	switch env.Event {
	case evRegistered:
		var m registeredMsg
		if err := strictUnmarshal(env.Data, &m); err != nil {
			return Errored{Err: signal.Decodef(err, "malformed %s data", env.Event)}, true
		}
		return Registered{OK: m.Success}, true

	case evCall:
		var m callMsg
		if err := strictUnmarshal(env.Data, &m); err != nil {
			return Errored{Err: signal.Decodef(err, "malformed %s data", env.Event)}, true
		}
		p := signal.NewPayload(signal.KindOffer, m.Offer, m.ICECandidates)
		if err := p.Validate(); err != nil {
			return Errored{Err: signal.Decodef(err, "invalid offer from %s", m.From)}, true
		}
		return IncomingOffer{From: m.From, Payload: p}, true

	case evAnswer:
		var m answerMsg
		if err := strictUnmarshal(env.Data, &m); err != nil {
			return Errored{Err: signal.Decodef(err, "malformed %s data", env.Event)}, true
		}
		p := signal.NewPayload(signal.KindAnswer, m.Answer, m.ICECandidates)
		if err := p.Validate(); err != nil {
			return Errored{Err: signal.Decodef(err, "invalid answer from %s", m.From)}, true
		}
		return Answered{Payload: p}, true

	case evCandidate:
		var m candidateMsg
		if err := strictUnmarshal(env.Data, &m); err != nil {
			return Errored{Err: signal.Decodef(err, "malformed %s data", env.Event)}, true
		}
		return RemoteCandidate{Candidate: m.Candidate}, true

	case evDecline:
		var m declineMsg
		if err := strictUnmarshal(env.Data, &m); err != nil {
			return Errored{Err: signal.Decodef(err, "malformed %s data", env.Event)}, true
		}
		return Declined{From: m.From}, true

	default:
		slog.Warn("ignoring unknown relay event", "event", env.Event)
		return nil, false
	}
}

// emit delivers an event without ever blocking the read loop. A full channel
// means the consumer is gone or wedged; dropping with a log beats deadlock.
func (r *Relay) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		slog.Warn("relay event dropped, consumer not draining", "event", fmt.Sprintf("%T", ev))
	}
}

func strictUnmarshal(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
