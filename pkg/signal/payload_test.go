package signal

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayloadCopiesCandidates(t *testing.T) {
	candidates := []Candidate{
		{Candidate: "candidate:1 1 udp 2122260223 192.168.1.2 54321 typ host", SDPMid: "0"},
	}
	p := NewPayload(KindOffer, "v=0", candidates)

	candidates[0].Candidate = "mutated"
	assert.Equal(t, "candidate:1 1 udp 2122260223 192.168.1.2 54321 typ host", p.Candidates[0].Candidate,
		"payload must not alias the caller's slice")
}

func TestPayloadValidate(t *testing.T) {
	valid := NewPayload(KindAnswer, "v=0\r\ns=-", []Candidate{{Candidate: "candidate:1"}})
	require.NoError(t, valid.Validate())

	cases := []struct {
		name    string
		payload NegotiationPayload
	}{
		{"unknown kind", NegotiationPayload{Kind: "renegotiate", Description: "v=0"}},
		{"empty description", NegotiationPayload{Kind: KindOffer, Description: "   "}},
		{"empty candidate", NegotiationPayload{
			Kind: KindOffer, Description: "v=0", Candidates: []Candidate{{}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.payload.Validate()
			require.Error(t, err)
			assert.Equal(t, ErrValidation, KindOf(err))
		})
	}
}

func TestErrorKindRoundTrip(t *testing.T) {
	decodeErr := Decodef(errors.New("bad json"), "parse payload")
	assert.Equal(t, ErrDecode, KindOf(decodeErr))
	assert.Equal(t, ErrDecode, KindOf(fmt.Errorf("scanning: %w", decodeErr)))

	assert.Equal(t, ErrTransport, KindOf(errors.New("plain")), "untyped errors default to transport")

	var se *Error
	require.ErrorAs(t, Negotiationf(errors.New("rejected"), "apply answer"), &se)
	assert.Equal(t, ErrNegotiation, se.Kind)
	assert.ErrorContains(t, se, "apply answer")
}
