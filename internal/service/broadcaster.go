package service

import (
	"sync"

	domaintypes "dialogcore/internal/domain/types"
)

const subscriberBufferSize = 32

// broadcaster fans a single update stream out to any number of subscribers,
// each buffered independently so one slow consumer cannot starve another.
type broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan domaintypes.Update
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan domaintypes.Update)}
}

func (b *broadcaster) subscribe() (<-chan domaintypes.Update, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan domaintypes.Update, subscriberBufferSize)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

func (b *broadcaster) publish(u domaintypes.Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- u:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- u:
		default:
		}
	}
}
