// Package events is an in-memory pub/sub bus carrying broker callback
// events: resource allocation, container stop, launch failure, and
// request expiry. It models the broker's own callback threads as
// concurrent publishers distinct from the allocator's own goroutine.
package events

import (
	"sync"
	"time"

	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
)

// Type identifies the kind of broker callback an Event carries.
type Type string

const (
	ResourceAllocated     Type = "resource.allocated"
	ContainerStopped      Type = "container.stopped"
	ContainerLaunchFailed Type = "container.launch_failed"
	RequestExpired        Type = "request.expired"
)

// Event is one broker callback, broadcast to every subscriber.
type Event struct {
	Type        Type
	Timestamp   time.Time
	ProcessorId clustertypes.ProcessorId
	ResourceId  clustertypes.ResourceId
	Host        clustertypes.Host
	ExitStatus  clustertypes.ExitStatus
	Request     *clustertypes.ResourceRequest
	Alternative *clustertypes.Resource
	Resource    *clustertypes.Resource
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Bus manages event subscriptions and non-blocking distribution.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBus creates a new event bus. Call Start before Publish.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the bus's broadcast loop.
func (b *Bus) Start() {
	go b.run()
}

// Stop stops the broadcast loop.
func (b *Bus) Stop() {
	close(b.stopCh)
}

// Subscribe returns a new buffered channel that receives every event
// published after this call.
func (b *Bus) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes sub.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, sub)
	close(sub)
}

// Publish broadcasts event to every current subscriber. Non-blocking: a
// full subscriber buffer drops the event for that subscriber rather than
// stalling the publisher, so broker callback threads never block on a
// slow consumer.
func (b *Bus) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Bus) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bus) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
