package eventbus

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Type string

const (
	TypeTaskCreated       Type = "task.created"
	TypeTaskAssigned      Type = "task.assigned"
	TypeTaskStatusChanged Type = "task.status_changed"
	TypeTaskReassigned    Type = "task.reassigned"
)

// Event describes one task mutation. Metadata carries the fields that changed
// (status, from, to, assigned_to, actor).
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	ResourceID string            `json:"resource_id"`
	Message    string            `json:"message,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Event
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan *Event),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *Event) {
	id := ulid.Make().String()
	ch := make(chan *Event, bufSize)
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

// Publish never blocks; a subscriber whose buffer is full misses the event.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *Bus) PublishNew(eventType Type, resourceID, message string, metadata map[string]string) {
	b.Publish(&Event{
		ID:         ulid.Make().String(),
		Type:       eventType,
		ResourceID: resourceID,
		Message:    message,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	})
}
