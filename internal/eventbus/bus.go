// ABOUTME: Named-topic pub/sub bus for SwarmManager events: agent_status, agents_snapshot, conversation_*.
// ABOUTME: Topic-broadcaster pub/sub: buffered per-subscriber channels, non-blocking send with drop-on-full semantics.
package eventbus

import "sync"

// Topic enumerates the named event streams SwarmManager emits, per spec.md §4.4.
type Topic string

const (
	TopicAgentStatus        Topic = "agent_status"
	TopicAgentsSnapshot     Topic = "agents_snapshot"
	TopicConversationMessage Topic = "conversation_message"
	TopicConversationLog    Topic = "conversation_log"
	TopicConversationReset  Topic = "conversation_reset"
)

// Event is one message on the bus: Topic identifies its shape, Payload
// carries the topic-specific value (an AgentStatusEvent, a []AgentSnapshot,
// a session.ConversationEntry, or a ConversationResetEvent).
type Event struct {
	Topic   Topic
	Payload any
}

// subscriberBuffer is generous enough that a slow WS client doesn't stall
// publishers; Publish drops events for a subscriber whose buffer is full,
// per the "last-writer wins, no replay" semantics of spec.md §4.4.
const subscriberBuffer = 4096

// Bus fans out Events to any number of subscribers, without regard to topic
// filtering (subscribers filter client-side, same as the teacher's
// EventBroadcaster). Each subscriber gets its own buffered channel.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Event
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe returns a new buffered channel that receives every published Event.
func (b *Bus) Subscribe() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Unsubscribe removes and closes ch. Safe to call once per channel returned by Subscribe.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish sends evt to every subscriber. Non-blocking: a subscriber whose
// buffer is full silently misses the event, consistent with "last-writer
// wins, no replay" — new subscribers hydrate via an explicit snapshot call
// rather than replaying history.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}
