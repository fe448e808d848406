package transport

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paircall/paircall/pkg/codec"
	"github.com/paircall/paircall/pkg/signal"
)

type displayCapture struct {
	mu         sync.Mutex
	code       string
	simplified bool
	degraded   bool
	calls      int
}

func (d *displayCapture) fn() DisplayFunc {
	return func(code string, simplified, degraded bool) {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.code = code
		d.simplified = simplified
		d.degraded = degraded
		d.calls++
	}
}

func (d *displayCapture) last() (string, bool, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.code, d.simplified, d.degraded
}

func opticalOffer() signal.NegotiationPayload {
	return signal.NewPayload(signal.KindOffer,
		"v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\ns=-\r\nt=0 0",
		[]signal.Candidate{{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMid: "0"}})
}

func TestOpticalSendDisplaysDecodableCode(t *testing.T) {
	c := codec.New(codec.DefaultConfig())
	display := &displayCapture{}
	o := NewOptical(c, display.fn())

	p := opticalOffer()
	require.NoError(t, o.Send(context.Background(), OpticalPeerID, p))

	code, simplified, degraded := display.last()
	require.NotEmpty(t, code)
	assert.False(t, simplified)
	assert.False(t, degraded)

	decoded, err := c.Decode(code)
	require.NoError(t, err)
	assert.Equal(t, p, decoded, "what the peer scans is exactly what was sent")
}

func TestOpticalSendFallsBackToPlaceholder(t *testing.T) {
	// Capacity chosen so the real payload fails even after simplification but
	// the minimal placeholder still fits.
	c := codec.New(codec.Config{CapacityBytes: 100})
	display := &displayCapture{}
	o := NewOptical(c, display.fn())

	sdp := "v=0\r\n" +
		"a=fingerprint:sha-256 19:E2:1C:3B:4B:9F:81:E6:B8:5C:F4:A5:A8:D8:73:04:19:E2:1C:3B:4B:9F:81:E6\r\n" +
		"a=ice-pwd:x9cml/YzichV2+XlhiMu8gx9cml/YzichV2+XlhiMu8g\r\n"
	p := signal.NewPayload(signal.KindOffer, sdp, nil)

	require.NoError(t, o.Send(context.Background(), OpticalPeerID, p))

	code, _, degraded := display.last()
	assert.True(t, degraded, "an unencodable payload degrades to the placeholder")

	decoded, err := c.Decode(code)
	require.NoError(t, err)
	assert.Equal(t, signal.KindOffer, decoded.Kind)
	assert.True(t, strings.HasPrefix(decoded.Description, "v=0"))
	assert.Empty(t, decoded.Candidates)
}

func TestOpticalScanEmitsOfferAndAnswerEvents(t *testing.T) {
	c := codec.New(codec.DefaultConfig())
	o := NewOptical(c, nil)

	offer := opticalOffer()
	encoded, _, err := c.Encode(offer)
	require.NoError(t, err)
	require.NoError(t, o.Scan(encoded))

	ev := nextEvent(t, o.Events())
	in, ok := ev.(IncomingOffer)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, OpticalPeerID, in.From)
	assert.Equal(t, offer, in.Payload)

	answer := signal.NewPayload(signal.KindAnswer, "v=0\r\ns=-", nil)
	encoded, _, err = c.Encode(answer)
	require.NoError(t, err)
	require.NoError(t, o.Scan(encoded))

	ev = nextEvent(t, o.Events())
	an, ok := ev.(Answered)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, answer, an.Payload)
}

func TestOpticalScanRejectsGarbage(t *testing.T) {
	o := NewOptical(codec.New(codec.DefaultConfig()), nil)

	err := o.Scan("not a code at all")
	require.Error(t, err)
	assert.Equal(t, signal.ErrDecode, signal.KindOf(err))

	ev := nextEvent(t, o.Events())
	errored, ok := ev.(Errored)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, signal.ErrDecode, signal.KindOf(errored.Err))
}

func TestOpticalChannelContract(t *testing.T) {
	o := NewOptical(codec.New(codec.DefaultConfig()), nil)

	assert.True(t, o.Ready(), "showing a code needs no connection")
	assert.Equal(t, PolicyEmbed, o.CandidatePolicy())
	assert.ErrorIs(t, o.SendCandidate(context.Background(), OpticalPeerID, signal.Candidate{Candidate: "candidate:1"}), ErrNotStreaming)
	assert.NoError(t, o.Decline(context.Background(), OpticalPeerID))
}

func TestOpticalScanAfterCloseIsHarmless(t *testing.T) {
	c := codec.New(codec.DefaultConfig())
	o := NewOptical(c, nil)

	encoded, _, err := c.Encode(opticalOffer())
	require.NoError(t, err)

	require.NoError(t, o.Close())

	// A stale camera frame can still arrive after teardown; its events are
	// dropped instead of landing on the closed channel.
	require.NotPanics(t, func() {
		o.Scan(encoded)
		o.Scan("not a code at all")
	})
	require.NotPanics(t, func() { o.Close() })
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event arrived")
		return nil
	}
}
