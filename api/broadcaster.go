package api

import (
	"sync"

	"github.com/rns-lang/x64codegen/trace"
)

// EventType tags a BroadcastEvent's payload shape.
type EventType string

const (
	// EventTypeBuild carries one trace.BuildEvent as it is recorded.
	EventTypeBuild EventType = "build"
	// EventTypeComplete marks a function's fn_end (entry offset, byte size).
	EventTypeComplete EventType = "complete"
	// EventTypeError carries a build failure.
	EventTypeError EventType = "error"
)

// BroadcastEvent is one message fanned out to subscribed WebSocket clients.
type BroadcastEvent struct {
	Type    EventType              `json:"type"`
	BuildID string                 `json:"buildId"`
	Data    map[string]interface{} `json:"data"`
}

// Subscription is one client's filtered view of the broadcast stream.
type Subscription struct {
	BuildID    string
	EventTypes map[EventType]bool
	Channel    chan BroadcastEvent
}

// Broadcaster fans build events out to any number of WebSocket clients
// using a single goroutine to serialize registration and delivery.
type Broadcaster struct {
	mu            sync.RWMutex
	subscriptions map[*Subscription]bool
	broadcast     chan BroadcastEvent
	register      chan *Subscription
	unregister    chan *Subscription
	done          chan struct{}
}

// NewBroadcaster creates and starts a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	b := &Broadcaster{
		subscriptions: make(map[*Subscription]bool),
		broadcast:     make(chan BroadcastEvent, 256),
		register:      make(chan *Subscription),
		unregister:    make(chan *Subscription),
		done:          make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broadcaster) run() {
	for {
		select {
		case sub := <-b.register:
			b.mu.Lock()
			b.subscriptions[sub] = true
			b.mu.Unlock()

		case sub := <-b.unregister:
			b.mu.Lock()
			if b.subscriptions[sub] {
				delete(b.subscriptions, sub)
				close(sub.Channel)
			}
			b.mu.Unlock()

		case event := <-b.broadcast:
			b.mu.RLock()
			for sub := range b.subscriptions {
				if sub.BuildID != "" && sub.BuildID != event.BuildID {
					continue
				}
				if len(sub.EventTypes) > 0 && !sub.EventTypes[event.Type] {
					continue
				}
				select {
				case sub.Channel <- event:
				default:
					// slow client, drop this event rather than block the broadcaster
				}
			}
			b.mu.RUnlock()

		case <-b.done:
			b.mu.Lock()
			for sub := range b.subscriptions {
				close(sub.Channel)
			}
			b.subscriptions = make(map[*Subscription]bool)
			b.mu.Unlock()
			return
		}
	}
}

// Subscribe registers a new subscription. buildID empty means all builds;
// an empty eventTypes means all event types.
func (b *Broadcaster) Subscribe(buildID string, eventTypes []EventType) *Subscription {
	eventTypeMap := make(map[EventType]bool)
	for _, et := range eventTypes {
		eventTypeMap[et] = true
	}
	sub := &Subscription{
		BuildID:    buildID,
		EventTypes: eventTypeMap,
		Channel:    make(chan BroadcastEvent, 64),
	}
	b.register <- sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.unregister <- sub
}

// Broadcast sends an event to all matching subscriptions, dropping it if
// the broadcaster's internal queue is full.
func (b *Broadcaster) Broadcast(event BroadcastEvent) {
	select {
	case b.broadcast <- event:
	default:
	}
}

// BroadcastBuildEvent converts one trace.BuildEvent into a BroadcastEvent
// and fans it out.
func (b *Broadcaster) BroadcastBuildEvent(buildID string, e trace.BuildEvent) {
	b.Broadcast(BroadcastEvent{
		Type:    EventTypeBuild,
		BuildID: buildID,
		Data: map[string]interface{}{
			"sequence": e.Sequence,
			"function": e.Function,
			"kind":     e.Kind.String(),
			"mnemonic": e.Mnemonic,
			"offset":   e.Offset,
			"detail":   e.Detail,
			"length":   e.Length,
		},
	})
}

// BroadcastComplete announces a finished function build.
func (b *Broadcaster) BroadcastComplete(buildID, function string, entryOffset uint32, byteSize int) {
	b.Broadcast(BroadcastEvent{
		Type:    EventTypeComplete,
		BuildID: buildID,
		Data: map[string]interface{}{
			"function":    function,
			"entryOffset": entryOffset,
			"byteSize":    byteSize,
		},
	})
}

// BroadcastError announces a build failure.
func (b *Broadcaster) BroadcastError(buildID, function, message string) {
	b.Broadcast(BroadcastEvent{
		Type:    EventTypeError,
		BuildID: buildID,
		Data: map[string]interface{}{
			"function": function,
			"message":  message,
		},
	})
}

// Close shuts down the broadcaster and closes all subscriptions.
func (b *Broadcaster) Close() {
	close(b.done)
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Broadcaster) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}
