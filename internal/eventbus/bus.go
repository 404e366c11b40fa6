// Package eventbus is the in-process pub/sub channel for agent lifecycle
// events. Slow subscribers never block publishers: a full buffer drops the
// event for that subscriber only.
package eventbus

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type EventType string

const (
	EventStateTransition   EventType = "state_transition"
	EventTransitionDenied  EventType = "transition_denied"
	EventRecoveryAttempted EventType = "recovery_attempted"
	EventCheckpointSaved   EventType = "checkpoint_saved"
	EventAgentResumed      EventType = "agent_resumed"
	EventAgentAbandoned    EventType = "agent_abandoned"
	EventEscalation        EventType = "escalation"
)

// Event is one lifecycle occurrence on the bus.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	AgentID   string            `json:"agent_id"`
	Payload   string            `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan Event),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan Event) {
	id := ulid.Make().String()
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// buffer full, drop event for this subscriber
		}
	}
}

// PublishNew stamps an ID and timestamp and publishes.
func (b *Bus) PublishNew(eventType EventType, agentID string, payload string, metadata map[string]string) {
	b.Publish(Event{
		ID:        ulid.Make().String(),
		Type:      eventType,
		AgentID:   agentID,
		Payload:   payload,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	})
}
