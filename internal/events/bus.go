package events

import "sync"

// Topic identifies a class of ambient, cross-cutting events published on
// Bus -- distinct from the per-batch UnitEvent/AggregateEvent streams above,
// which are typed and scoped to one coordinator call. Bus instead mirrors
// the teacher's EventBus (internal/events/events.go, now removed): a single
// process-wide fan-out for log lines and state-change notices that the CLI
// and progress UI subscribe to, keyed by topic rather than by batch.
type Topic int

const (
	// TopicLog carries structured log lines from internal/logging, so a GUI
	// or alternate frontend can render them without depending on zerolog.
	TopicLog Topic = iota
	// TopicReachability carries connectivity transitions from
	// internal/reachability (C9).
	TopicReachability
)

// Bus is a minimal typed pub/sub, modeled on the teacher's EventBus:
// non-blocking publish to buffered per-subscriber channels, with a dropped-
// event counter instead of blocking a slow subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic][]chan any
	dropped     uint64
}

// NewBus creates an empty ambient event bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[Topic][]chan any)}
}

// Subscribe returns a channel of buffered capacity bufSize that receives
// every value published to topic after this call. The caller should not
// close the returned channel; Bus never closes subscriber channels since
// subscriptions outlive any single batch.
func (b *Bus) Subscribe(topic Topic, bufSize int) <-chan any {
	ch := make(chan any, bufSize)
	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers payload to every subscriber of topic. A subscriber whose
// buffer is full is skipped rather than blocked, and counted in
// DroppedCount(), matching the teacher's "never let a slow GUI stall a
// transfer" rule.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	subs := b.subscribers[topic]
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- payload:
		default:
			b.mu.Lock()
			b.dropped++
			b.mu.Unlock()
		}
	}
}

// DroppedCount returns the number of publishes skipped due to a full
// subscriber buffer since the bus was created or last reset.
func (b *Bus) DroppedCount() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// ResetDroppedCount zeroes the dropped-event counter.
func (b *Bus) ResetDroppedCount() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropped = 0
}
