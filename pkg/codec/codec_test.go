package codec

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paircall/paircall/pkg/signal"
)

func smallOffer() signal.NegotiationPayload {
	return signal.NewPayload(signal.KindOffer,
		"v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\ns=-\r\nt=0 0",
		[]signal.Candidate{
			{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMid: "0"},
			{Candidate: "candidate:2 1 udp 2 10.0.0.2 5001 typ host", SDPMid: "0", SDPMLineIndex: 0},
		})
}

// verboseSDP builds a description whose bulk is non-essential attribute
// lines, the shape a real engine produces.
func verboseSDP(extraLines int) string {
	var b strings.Builder
	b.WriteString("v=0\r\n")
	b.WriteString("o=- 4611731400430051336 2 IN IP4 127.0.0.1\r\n")
	b.WriteString("s=-\r\n")
	b.WriteString("t=0 0\r\n")
	b.WriteString("m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n")
	b.WriteString("c=IN IP4 0.0.0.0\r\n")
	b.WriteString("a=rtpmap:111 opus/48000/2\r\n")
	b.WriteString("a=sendrecv\r\n")
	b.WriteString("a=fingerprint:sha-256 19:E2:1C:3B:4B:9F:81:E6:B8:5C:F4:A5:A8:D8:73:04\r\n")
	b.WriteString("a=setup:actpass\r\n")
	b.WriteString("a=mid:0\r\n")
	b.WriteString("a=ice-ufrag:F7gI\r\n")
	b.WriteString("a=ice-pwd:x9cml/YzichV2+XlhiMu8g\r\n")
	for i := 0; i < extraLines; i++ {
		fmt.Fprintf(&b, "a=extmap:%d urn:ietf:params:rtp-hdrext:sdes:mid-%d\r\n", i, i)
	}
	return b.String()
}

func TestSmallPayloadPassesThroughRaw(t *testing.T) {
	c := New(DefaultConfig())
	p := smallOffer()

	encoded, simplified, err := c.Encode(p)
	require.NoError(t, err)
	assert.False(t, simplified)
	assert.False(t, strings.HasPrefix(encoded, CompressedPrefix),
		"a payload that already fits must not pay the compression cost")
	assert.LessOrEqual(t, len(encoded), 300)

	decoded, err := c.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}

func TestRepetitivePayloadCompresses(t *testing.T) {
	c := New(DefaultConfig())
	// Highly repetitive descriptions are where gzip earns its keep.
	sdp := "v=0\r\n" + strings.Repeat("a=rtpmap:111 opus/48000/2\r\n", 400)
	p := signal.NewPayload(signal.KindAnswer, sdp, nil)

	encoded, simplified, err := c.Encode(p)
	require.NoError(t, err)
	assert.False(t, simplified)
	assert.True(t, strings.HasPrefix(encoded, CompressedPrefix))
	assert.LessOrEqual(t, len(encoded), c.Capacity())

	decoded, err := c.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, p, decoded, "compression must round-trip exactly")
}

func TestOversizedPayloadSimplifies(t *testing.T) {
	c := New(Config{CapacityBytes: 420})
	candidates := make([]signal.Candidate, 6)
	for i := range candidates {
		candidates[i] = signal.Candidate{
			Candidate: fmt.Sprintf("candidate:%d 1 udp %d 10.0.0.%d 500%d typ host", i, i, i, i),
			SDPMid:    "0",
		}
	}
	p := signal.NewPayload(signal.KindOffer, verboseSDP(300), candidates)

	encoded, simplified, err := c.Encode(p)
	require.NoError(t, err)
	assert.True(t, simplified)
	assert.False(t, strings.HasPrefix(encoded, CompressedPrefix),
		"simplified form is emitted without compression")
	assert.LessOrEqual(t, len(encoded), 420)

	decoded, err := c.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, p.Kind, decoded.Kind)
	assert.LessOrEqual(t, len(decoded.Candidates), 3)
	assert.Equal(t, p.Candidates[:3], decoded.Candidates, "truncation keeps the first candidates in order")
	assert.Contains(t, decoded.Description, "a=ice-pwd:")
	assert.Contains(t, decoded.Description, "a=fingerprint:")
	assert.NotContains(t, decoded.Description, "a=extmap:", "non-essential lines are stripped")
}

func TestEncodeFailsWhenNothingFits(t *testing.T) {
	c := New(Config{CapacityBytes: 40})
	_, _, err := c.Encode(smallOffer())
	require.Error(t, err)
	assert.ErrorContains(t, err, "capacity")
}

func TestDecodeRejectsCorruptInput(t *testing.T) {
	c := New(DefaultConfig())

	cases := []struct {
		name string
		raw  string
	}{
		{"not json", "definitely not a payload"},
		{"truncated json", `{"type":"offer","sdp":"v=0`},
		{"bad base64", CompressedPrefix + "!!!not-base64!!!"},
		{"not gzip", CompressedPrefix + "aGVsbG8gd29ybGQ="},
		{"unknown field", `{"type":"offer","sdp":"v=0","bogus":1}`},
		{"unknown kind", `{"type":"renegotiate","sdp":"v=0"}`},
		{"missing sdp", `{"type":"offer"}`},
		{"trailing data", `{"type":"offer","sdp":"v=0"}{"x":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Decode(tc.raw)
			require.Error(t, err)
			assert.Equal(t, signal.ErrDecode, signal.KindOf(err))
		})
	}
}

func TestDecodeAcceptsForeignRawPayload(t *testing.T) {
	// A peer that never compresses (tiny payloads) produces plain JSON; the
	// decoder must take it as-is.
	c := New(DefaultConfig())
	raw := `{"type":"answer","sdp":"v=0\r\ns=-","iceCandidates":[{"candidate":"candidate:1","sdpMid":"0","sdpMLineIndex":0}]}`

	p, err := c.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, signal.KindAnswer, p.Kind)
	require.Len(t, p.Candidates, 1)
	assert.Equal(t, "candidate:1", p.Candidates[0].Candidate)
}
