package web

import (
	"context"
	"encoding/json"
	"sync"

	"micguard/internal/adapter/secondary/repository"
	"micguard/internal/domain"
)

const subscriberBuffer = 16

// wsEnvelope is the message shape on /ws.
type wsEnvelope struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Hub fans cycle reports out to websocket subscribers. Slow subscribers drop messages.
type Hub struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan []byte]struct{})}
}

// Subscribe returns a message channel and a cancel func that closes it.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ObserveCycle broadcasts the report as a "cycle" envelope.
func (h *Hub) ObserveCycle(ctx context.Context, r domain.CycleReport) error {
	msg, err := json.Marshal(wsEnvelope{Type: "cycle", Data: repository.EventFromReport(r)})
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}
