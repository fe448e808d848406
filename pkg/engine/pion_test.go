package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paircall/paircall/pkg/signal"
)

func TestRejectedCandidateIsNotRememberedAsDuplicate(t *testing.T) {
	e, err := NewPionEngine(DefaultEngineConfig())
	require.NoError(t, err)
	defer e.Close()

	// No remote description is set, so the stack rejects every add. Offering
	// the same candidate again must surface the real rejection each time.
	c := signal.Candidate{Candidate: "candidate:1 1 udp 2122260223 192.168.1.2 54321 typ host", SDPMid: "0"}

	first := e.AddCandidate(c)
	require.Error(t, first)
	assert.NotErrorIs(t, first, ErrDuplicateCandidate)

	second := e.AddCandidate(c)
	require.Error(t, second)
	assert.NotErrorIs(t, second, ErrDuplicateCandidate)
}
