package appevents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paircall/paircall/pkg/call"
)

func TestBusDeliversToEverySubscriber(t *testing.T) {
	b := NewBus()
	_, a := b.Subscribe(4)
	_, c := b.Subscribe(4)

	b.Publish(StateChangedMsg{State: call.Negotiating})

	for _, ch := range []<-chan Message{a, c} {
		msg := <-ch
		st, ok := msg.(StateChangedMsg)
		require.True(t, ok, "got %T", msg)
		assert.Equal(t, call.Negotiating, st.State)
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	id, ch := b.Subscribe(4)

	b.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)

	// Publishing afterwards must not panic on the closed channel.
	b.Publish(RegisteredMsg{OK: true})
	b.Unsubscribe(id)
}

func TestBusNeverBlocksThePublisher(t *testing.T) {
	b := NewBus()
	_, ch := b.Subscribe(1)

	b.Publish(RegisteredMsg{OK: true})
	b.Publish(RegisteredMsg{OK: false}) // buffer full; dropped, not stuck

	msg := <-ch
	reg, ok := msg.(RegisteredMsg)
	require.True(t, ok, "got %T", msg)
	assert.True(t, reg.OK, "the first message survives, the overflow is dropped")
	select {
	case extra := <-ch:
		t.Fatalf("unexpected second message %T", extra)
	default:
	}
}
