// Package broadcast fans named events out to whoever is listening: browser
// tabs on the SSE endpoint and, optionally, other processes through Redis.
package broadcast

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

const defaultBuffer = 32

// Message is one broadcast as subscribers receive it.
type Message struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
	Origin  string          `json:"origin,omitempty"`
}

type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Hub delivers broadcasts to in-process subscribers. Delivery never blocks:
// a subscriber whose buffer is full misses the message.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscription]struct{}
	buffer      int
	now         func() time.Time
}

type Subscription struct {
	C      <-chan Message
	ch     chan Message
	hub    *Hub
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subscribers: make(map[*Subscription]struct{}),
		buffer:      buffer,
		now:         time.Now,
	}
}

func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Message, h.buffer)
	sub := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subscribers, s)
		s.hub.mu.Unlock()

		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

func (s *Subscription) deliver(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) Broadcast(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[broadcast] Failed to marshal %s payload: %v", event, err)
		return
	}
	h.publish(Message{Event: event, Payload: data, SentAt: h.now()})
}

func (h *Hub) publish(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		if !sub.deliver(msg) {
			log.Printf("[broadcast] Dropped %s for a slow subscriber", msg.Event)
		}
	}
}

// Multi sends every broadcast to each of its members in order.
type Multi []Broadcaster

func (m Multi) Broadcast(event string, payload any) {
	for _, b := range m {
		b.Broadcast(event, payload)
	}
}
