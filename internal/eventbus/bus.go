package eventbus

import "sync"

const (
	globalBufferSize  = 1000
	sessionBufferSize = 100
)

// Subscription is a cancellable handle to a live event stream. Closing it
// (via Close, or having the bus close it after a lag) releases the
// underlying channel; C is never written to again afterward.
type Subscription struct {
	C <-chan Event

	bus       *Bus
	sessionID string // empty for a global subscription
	ch        chan Event
	closeOnce sync.Once
}

// Close unsubscribes and releases the channel. Safe to call more than once
// and safe to call after the bus itself already closed the channel for lag.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.unsubscribe(s)
	})
}

// Bus is the Event Bus of spec §4.3: one global broadcast channel plus a
// dynamic per-session channel registry, each delivered to a bounded buffer
// per subscriber, with a drop-the-lagging-subscriber policy so one slow
// reader can never block the orchestrator's hot path.
type Bus struct {
	mu       sync.Mutex
	global   map[*Subscription]chan Event
	sessions map[string]*sessionTopic
}

type sessionTopic struct {
	subs            map[*Subscription]chan Event
	terminated bool // session has terminated; tear down once subs drains to zero
}

func New() *Bus {
	return &Bus{
		global:   make(map[*Subscription]chan Event),
		sessions: make(map[string]*sessionTopic),
	}
}

// SubscribeGlobal returns a subscription fed by every event published on the
// bus, from this call forward. Events published before attachment are not
// replayed (spec §4.3).
func (b *Bus) SubscribeGlobal() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, globalBufferSize)
	sub := &Subscription{C: ch, bus: b, ch: ch}
	b.global[sub] = ch
	return sub
}

// SubscribeSession returns a subscription fed only by events published for
// sessionID, creating the per-session topic lazily if this is the first
// subscriber (spec §4.3).
func (b *Bus) SubscribeSession(sessionID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	topic := b.sessions[sessionID]
	if topic == nil {
		topic = &sessionTopic{subs: make(map[*Subscription]chan Event)}
		b.sessions[sessionID] = topic
	}

	ch := make(chan Event, sessionBufferSize)
	sub := &Subscription{C: ch, bus: b, sessionID: sessionID, ch: ch}
	topic.subs[sub] = ch
	return sub
}

// Publish enqueues event to the global stream and, if event.SessionID names
// a session, to that session's stream too. It returns as soon as the event is
// enqueued into every subscriber's buffer or that subscriber has been
// dropped for lagging — it never blocks on a subscriber's consumption (spec
// §4.3, §5, and testable property 5).
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub, ch := range b.global {
		b.deliverOrDrop(sub, ch, event, nil)
	}

	if event.SessionID == "" {
		return
	}
	topic := b.sessions[event.SessionID]
	if topic == nil {
		topic = &sessionTopic{subs: make(map[*Subscription]chan Event)}
		b.sessions[event.SessionID] = topic
	}
	for sub, ch := range topic.subs {
		b.deliverOrDrop(sub, ch, event, topic)
	}
}

// deliverOrDrop performs a non-blocking send. On a full buffer it closes the
// subscriber's channel (the "lagged" signal) and removes it from whichever
// topic it belongs to, rather than blocking the publisher. Must be called
// with b.mu held.
func (b *Bus) deliverOrDrop(sub *Subscription, ch chan Event, event Event, topic *sessionTopic) {
	select {
	case ch <- event:
	default:
		close(ch)
		delete(b.global, sub)
		if topic != nil {
			delete(topic.subs, sub)
			b.maybeRemoveTopicLocked(event.SessionID, topic)
		}
	}
}

// unsubscribe removes sub from wherever it lives and closes its channel,
// releasing all resources (spec §4.3's cancellation requirement).
func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.sessionID == "" {
		if _, ok := b.global[sub]; ok {
			delete(b.global, sub)
			close(sub.ch)
		}
		return
	}

	topic := b.sessions[sub.sessionID]
	if topic == nil {
		return
	}
	if _, ok := topic.subs[sub]; ok {
		delete(topic.subs, sub)
		close(sub.ch)
	}
	b.maybeRemoveTopicLocked(sub.sessionID, topic)
}

// CleanupSession marks sessionID's topic terminated; the topic is removed
// immediately if it has no subscribers, or as soon as the last one
// disconnects (spec §4.8 step 7: "tear down ... once it has no subscribers").
func (b *Bus) CleanupSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	topic := b.sessions[sessionID]
	if topic == nil {
		return
	}
	topic.terminated = true
	b.maybeRemoveTopicLocked(sessionID, topic)
}

func (b *Bus) maybeRemoveTopicLocked(sessionID string, topic *sessionTopic) {
	if topic.terminated && len(topic.subs) == 0 {
		delete(b.sessions, sessionID)
	}
}
