package eventbus

import (
	"testing"
	"time"
)

func TestSessionSubscriberReceivesOnlyItsSessionEvents(t *testing.T) {
	bus := New()
	sub := bus.SubscribeSession("s1")
	defer sub.Close()

	bus.Publish(StatusChanged("s1", "Ready"))
	bus.Publish(StatusChanged("s2", "Ready"))

	select {
	case ev := <-sub.C:
		if ev.SessionID != "s1" {
			t.Fatalf("got event for session %s, want s1", ev.SessionID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case ev, ok := <-sub.C:
		if ok {
			t.Fatalf("unexpected second event for s1 subscriber: %+v", ev)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGlobalSubscriberReceivesEventsInPublishOrder(t *testing.T) {
	bus := New()
	sub := bus.SubscribeGlobal()
	defer sub.Close()

	bus.Publish(StatusChanged("s1", "Creating"))
	bus.Publish(StatusChanged("s1", "WaitingForServices"))
	bus.Publish(StatusChanged("s1", "Ready"))

	var got []string
	for i := 0; i < 3; i++ {
		ev := <-sub.C
		got = append(got, ev.Status)
	}

	want := []string{"Creating", "WaitingForServices", "Ready"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got order %v, want %v", got, want)
		}
	}
}

func TestSlowSubscriberIsDroppedNotBlocked(t *testing.T) {
	bus := New()
	fast := bus.SubscribeGlobal()
	defer fast.Close()
	slow := bus.SubscribeGlobal()

	total := globalBufferSize + 10
	done := make(chan struct{})
	go func() {
		for i := 0; i < total; i++ {
			bus.Publish(StatusChanged("s1", "Ready"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on the slow subscriber")
	}

	count := 0
drain:
	for {
		select {
		case _, ok := <-fast.C:
			if !ok {
				break drain
			}
			count++
		default:
			break drain
		}
	}
	if count == 0 {
		t.Fatal("fast subscriber received nothing")
	}

	// The bus closes a lagging subscriber's channel behind the events already
	// in its buffer, so those are read first; the close must follow them.
	received := 0
	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-slow.C:
			if !ok {
				if received != globalBufferSize {
					t.Fatalf("slow subscriber closed after %d buffered events, want %d", received, globalBufferSize)
				}
				return
			}
			received++
			if received > globalBufferSize {
				t.Fatal("expected slow subscriber's channel to be closed (lagged), got a live event")
			}
		case <-timeout:
			t.Fatal("slow subscriber's channel was never closed")
		}
	}
}

func TestCleanupSessionRemovesEmptyTopicImmediately(t *testing.T) {
	bus := New()
	sub := bus.SubscribeSession("s1")
	sub.Close()

	bus.CleanupSession("s1")

	bus.mu.Lock()
	_, exists := bus.sessions["s1"]
	bus.mu.Unlock()
	if exists {
		t.Fatal("expected session topic to be removed after cleanup with no subscribers")
	}
}

func TestCleanupSessionDefersRemovalUntilLastSubscriberLeaves(t *testing.T) {
	bus := New()
	sub := bus.SubscribeSession("s1")

	bus.CleanupSession("s1")

	bus.mu.Lock()
	_, exists := bus.sessions["s1"]
	bus.mu.Unlock()
	if !exists {
		t.Fatal("topic removed while a subscriber was still attached")
	}

	sub.Close()

	bus.mu.Lock()
	_, exists = bus.sessions["s1"]
	bus.mu.Unlock()
	if exists {
		t.Fatal("expected topic to be removed once the last subscriber closed")
	}
}
