// Package sse fans live events out to browser streams. The hub doubles as
// the in-process push-delivery collaborator: a notification pushed to an
// address reaches every open stream for that address. Sends never block; a
// slow consumer just misses the event.
package sse

import (
	"context"
	"sync"
)

type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan []byte]struct{})}
}

// Subscribe registers a stream for an address and returns its channel plus
// an unsubscribe func that must be called when the stream closes.
func (h *Hub) Subscribe(address string) (chan []byte, func()) {
	ch := make(chan []byte, 8)
	h.mu.Lock()
	if _, ok := h.subs[address]; !ok {
		h.subs[address] = make(map[chan []byte]struct{})
	}
	h.subs[address][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		if subscribers, ok := h.subs[address]; ok {
			delete(subscribers, ch)
			if len(subscribers) == 0 {
				delete(h.subs, address)
			}
		}
		h.mu.Unlock()
		close(ch)
	}
}

// Push implements the notify.Pusher collaborator over the hub.
func (h *Hub) Push(_ context.Context, address string, payload []byte) error {
	h.broadcast(address, payload)
	return nil
}

func (h *Hub) broadcast(address string, payload []byte) {
	if address == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[address] {
		select {
		case ch <- payload:
		default:
		}
	}
}
