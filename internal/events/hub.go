package events

import "sync"

// Bus fans messages out to topic subscribers.
type Bus interface {
	Subscribe(topic string) chan Message
	Unsubscribe(topic string, ch chan Message)
	Publish(topic string, msg Message)
}

// Hub is the in-process Bus. Slow subscribers miss messages rather than
// block publishers.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Message]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan Message]struct{}{}}
}

func (h *Hub) Subscribe(topic string) chan Message {
	ch := make(chan Message, 16)
	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = map[chan Message]struct{}{}
	}
	h.subs[topic][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(topic string, ch chan Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.subs[topic]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(h.subs, topic)
	}
	close(ch)
}

func (h *Hub) Publish(topic string, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[topic] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribers reports how many channels listen on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}
