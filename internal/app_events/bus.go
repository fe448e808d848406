package appevents

import (
	"log/slog"
	"sync"
)

// Bus fans orchestrator messages out to UI subscribers. Subscriptions are
// scoped: a screen subscribes when it becomes visible and unsubscribes when
// it is torn down, so no message is ever delivered into dead code.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Message
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Message)}
}

// Subscribe registers a new subscriber and returns its id together with the
// receive channel.
func (b *Bus) Subscribe(buffer int) (int, <-chan Message) {
	if buffer <= 0 {
		buffer = 16
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Message, buffer)
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers msg to every subscriber without blocking the caller. A
// subscriber that stops draining loses messages, not the publisher.
func (b *Bus) Publish(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			slog.Warn("dropping UI message, subscriber not draining", "subscriber", id)
		}
	}
}
