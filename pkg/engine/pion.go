package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/paircall/paircall/pkg/signal"
)

// Config holds the configuration for creating a PionEngine.
type Config struct {
	ICEServers []webrtc.ICEServer
}

func DefaultEngineConfig() Config {
	return Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
		},
	}
}

// PionEngine adapts a pion/webrtc peer connection to the Engine interface.
// One instance serves one call attempt; Close and create a fresh one for the
// next call.
type PionEngine struct {
	pc *webrtc.PeerConnection

	mu    sync.Mutex
	added map[signal.Candidate]struct{}

	onCandidate    func(signal.Candidate)
	onGathered     func()
	onConnectivity func(ConnState)
}

var _ Engine = (*PionEngine)(nil)

// NewPionEngine builds a peer connection negotiating bidirectional audio and
// video. Using a dedicated API instance keeps its settings from leaking into
// other connections in the same process.
func NewPionEngine(config Config) (*PionEngine, error) {
	if len(config.ICEServers) == 0 {
		config = DefaultEngineConfig()
	}

	settings := webrtc.SettingEngine{}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settings))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: config.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	e := &PionEngine{
		pc:    pc,
		added: make(map[signal.Candidate]struct{}),
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendrecv,
		}); err != nil {
			pc.Close()
			return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		out := signal.Candidate{Candidate: init.Candidate}
		if init.SDPMid != nil {
			out.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			out.SDPMLineIndex = *init.SDPMLineIndex
		}
		if fn := e.candidateFn(); fn != nil {
			fn(out)
		}
	})

	pc.OnICEGatheringStateChange(func(s webrtc.ICEGatheringState) {
		if s != webrtc.ICEGatheringStateComplete {
			return
		}
		if fn := e.gatheredFn(); fn != nil {
			fn()
		}
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		state, ok := mapICEState(s)
		if !ok {
			slog.Debug("ignoring ICE connection state", "state", s.String())
			return
		}
		if fn := e.connectivityFn(); fn != nil {
			fn(state)
		}
	})

	return e, nil
}

func (e *PionEngine) CreateOffer(ctx context.Context) (string, error) {
	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := e.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return offer.SDP, nil
}

func (e *PionEngine) CreateAnswer(ctx context.Context) (string, error) {
	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := e.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return answer.SDP, nil
}

func (e *PionEngine) SetRemoteDescription(ctx context.Context, kind signal.Kind, sdp string) error {
	sdpType := webrtc.SDPTypeOffer
	if kind == signal.KindAnswer {
		sdpType = webrtc.SDPTypeAnswer
	}
	if err := e.pc.SetRemoteDescription(webrtc.SessionDescription{Type: sdpType, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote %s: %w", kind, err)
	}
	return nil
}

// AddCandidate forwards a remote candidate. Exact re-adds are detected here
// rather than relying on the underlying stack to complain. Only candidates
// the stack accepted count as seen; a rejected candidate may be offered
// again and gets the real rejection, not ErrDuplicateCandidate.
func (e *PionEngine) AddCandidate(c signal.Candidate) error {
	e.mu.Lock()
	if _, dup := e.added[c]; dup {
		e.mu.Unlock()
		return ErrDuplicateCandidate
	}
	e.mu.Unlock()

	mid := c.SDPMid
	idx := c.SDPMLineIndex
	init := webrtc.ICECandidateInit{Candidate: c.Candidate, SDPMLineIndex: &idx}
	if mid != "" {
		init.SDPMid = &mid
	}
	if err := e.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}

	e.mu.Lock()
	e.added[c] = struct{}{}
	e.mu.Unlock()
	return nil
}

func (e *PionEngine) OnCandidate(fn func(signal.Candidate)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCandidate = fn
}

func (e *PionEngine) OnGatheringComplete(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onGathered = fn
}

func (e *PionEngine) OnConnectivityChange(fn func(ConnState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onConnectivity = fn
}

func (e *PionEngine) Close() error {
	if e.pc != nil {
		return e.pc.Close()
	}
	return nil
}

func (e *PionEngine) candidateFn() func(signal.Candidate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onCandidate
}

func (e *PionEngine) gatheredFn() func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onGathered
}

func (e *PionEngine) connectivityFn() func(ConnState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onConnectivity
}

func mapICEState(s webrtc.ICEConnectionState) (ConnState, bool) {
	switch s {
	case webrtc.ICEConnectionStateNew:
		return StateNew, true
	case webrtc.ICEConnectionStateChecking:
		return StateChecking, true
	case webrtc.ICEConnectionStateConnected:
		return StateConnected, true
	case webrtc.ICEConnectionStateCompleted:
		return StateCompleted, true
	case webrtc.ICEConnectionStateDisconnected:
		return StateDisconnected, true
	case webrtc.ICEConnectionStateFailed:
		return StateFailed, true
	default:
		return StateNew, false
	}
}
