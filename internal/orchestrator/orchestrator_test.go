package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rosielabs/sessioncore/internal/eventbus"
	"github.com/rosielabs/sessioncore/internal/registry"
	"github.com/rosielabs/sessioncore/internal/rtcgateway"
	"github.com/rosielabs/sessioncore/internal/session"
	"github.com/rosielabs/sessioncore/internal/testfixtures"
)

func newTestOrchestrator(opts Options) (*Orchestrator, *registry.Registry, *eventbus.Bus, *testfixtures.FakeGateway) {
	reg := registry.New()
	bus := eventbus.New()
	store := session.NewStore()
	gw := testfixtures.NewFakeGateway()
	if opts.Workers == 0 {
		opts = Options{JoinCallTimeout: 2 * time.Second, JoinDeadline: 2 * time.Second, ClientDeadline: 2 * time.Second, JoinRetryInterval: 50 * time.Millisecond, Workers: 4}
	}
	orch := New(store, reg, bus, gw, "http://rtc.test", opts, nil)
	return orch, reg, bus, gw
}

func drain(t *testing.T, sub *eventbus.Subscription, n int, timeout time.Duration) []eventbus.Event {
	t.Helper()
	var got []eventbus.Event
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				t.Fatalf("subscription channel closed after %d/%d events", len(got), n)
			}
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %d/%d: %+v", len(got), n, got)
		}
	}
	return got
}

// S1 — happy path.
func TestCreateSessionHappyPath(t *testing.T) {
	orch, reg, bus, gw := newTestOrchestrator(Options{})
	reg.Register("asr-1", "http://svc:8001", nil)

	result, err := orch.CreateSession(context.Background(), CreateSessionRequest{
		UserIdentity:      "u1",
		RequiredServices: []string{"asr-1"},
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if result.ClientToken == "" {
		t.Fatal("expected non-empty access token")
	}
	if result.Status != session.StatusWaitingForServices {
		t.Fatalf("got status %s, want WaitingForServices", result.Status)
	}

	sub := bus.SubscribeSession(result.SessionID)
	defer sub.Close()

	monitor := waitForMonitor(t, gw, result.RoomName)
	monitor.Emit(rtcgateway.RoomEvent{Kind: rtcgateway.EventParticipantJoined, Identity: "asr-1"})

	events := drain(t, sub, 2, 3*time.Second)
	if events[0].Kind != eventbus.KindMicroserviceJoined || events[0].ServiceID != "asr-1" {
		t.Fatalf("expected MicroserviceJoined first, got %+v", events[0])
	}
	if events[1].Kind != eventbus.KindSessionStatusChanged || events[1].Status != string(session.StatusReady) {
		t.Fatalf("expected StatusChanged{Ready} second, got %+v", events[1])
	}
}

func waitForMonitor(t *testing.T, gw *testfixtures.FakeGateway, room string) *testfixtures.FakeMonitor {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if m := gw.MonitorFor(room); m != nil {
			return m
		}
		select {
		case <-deadline:
			t.Fatal("monitor never opened")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// S2 — unknown required service.
func TestCreateSessionUnknownRequiredServiceFails(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator(Options{})

	_, err := orch.CreateSession(context.Background(), CreateSessionRequest{
		UserIdentity:      "u1",
		RequiredServices: []string{"ghost"},
	})
	if err == nil {
		t.Fatal("expected an error for an unregistered required service")
	}
}

// S3 — microservice never responds; join deadline fires.
func TestCreateSessionJoinDeadlineTerminatesSession(t *testing.T) {
	unresponsive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unresponsive.Close()

	orch, reg, bus, _ := newTestOrchestrator(Options{
		JoinCallTimeout:   500 * time.Millisecond,
		JoinDeadline:      300 * time.Millisecond,
		ClientDeadline:    time.Second,
		JoinRetryInterval: 50 * time.Millisecond,
		Workers:           4,
	})
	reg.Register("asr-1", unresponsive.URL, nil)

	result, err := orch.CreateSession(context.Background(), CreateSessionRequest{
		UserIdentity:      "u1",
		RequiredServices: []string{"asr-1"},
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	sub := bus.SubscribeSession(result.SessionID)
	defer sub.Close()

	events := drain(t, sub, 3, 3*time.Second)
	if events[0].Kind != eventbus.KindError {
		t.Fatalf("expected the join-timeout Error event first, got %+v", events[0])
	}
	if events[1].Status != string(session.StatusTerminating) {
		t.Fatalf("expected Terminating second, got %+v", events[1])
	}
	if events[2].Status != string(session.StatusTerminated) {
		t.Fatalf("expected Terminated third, got %+v", events[2])
	}
}

// S4 — client join then leave.
func TestClientJoinThenLeaveTerminatesSession(t *testing.T) {
	orch, _, bus, gw := newTestOrchestrator(Options{})

	result, err := orch.CreateSession(context.Background(), CreateSessionRequest{UserIdentity: "u1"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if result.Status != session.StatusReady {
		t.Fatalf("expected immediate Ready with no required services, got %s", result.Status)
	}

	sub := bus.SubscribeSession(result.SessionID)
	defer sub.Close()

	monitor := waitForMonitor(t, gw, result.RoomName)
	monitor.Emit(rtcgateway.RoomEvent{Kind: rtcgateway.EventParticipantJoined, Identity: "client-u1"})
	monitor.Emit(rtcgateway.RoomEvent{Kind: rtcgateway.EventParticipantLeft, Identity: "client-u1"})

	events := drain(t, sub, 4, 3*time.Second)
	wantKinds := []eventbus.Kind{eventbus.KindClientJoined, eventbus.KindSessionStatusChanged, eventbus.KindSessionStatusChanged, eventbus.KindSessionStatusChanged}
	for i, want := range wantKinds {
		if events[i].Kind != want {
			t.Fatalf("event %d: got kind %s, want %s (full: %+v)", i, events[i].Kind, want, events)
		}
	}
	if events[1].Status != string(session.StatusActive) {
		t.Fatalf("expected Active, got %+v", events[1])
	}
	if events[2].Status != string(session.StatusTerminating) {
		t.Fatalf("expected Terminating, got %+v", events[2])
	}
	if events[3].Status != string(session.StatusTerminated) {
		t.Fatalf("expected Terminated, got %+v", events[3])
	}
}

// S6 — duplicate register replaces endpoint, but a session created before the
// re-register keeps dispatching to the endpoint its snapshot captured.
func TestReRegisterAffectsOnlyFreshSnapshots(t *testing.T) {
	var oldHits, newHits int
	oldSvc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		oldHits++
		w.WriteHeader(http.StatusServiceUnavailable) // never lets the old session become ready
	}))
	defer oldSvc.Close()
	newSvc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		newHits++
		w.WriteHeader(http.StatusOK)
	}))
	defer newSvc.Close()

	orch, reg, _, _ := newTestOrchestrator(Options{
		JoinCallTimeout:   500 * time.Millisecond,
		JoinDeadline:      2 * time.Second,
		ClientDeadline:    2 * time.Second,
		JoinRetryInterval: 30 * time.Millisecond,
		Workers:           4,
	})
	reg.Register("asr-1", oldSvc.URL, nil)

	_, err := orch.CreateSession(context.Background(), CreateSessionRequest{
		UserIdentity:      "old-session",
		RequiredServices: []string{"asr-1"},
	})
	if err != nil {
		t.Fatalf("CreateSession (old): %v", err)
	}

	reg.Register("asr-1", newSvc.URL, nil)

	_, err = orch.CreateSession(context.Background(), CreateSessionRequest{
		UserIdentity:      "new-session",
		RequiredServices: []string{"asr-1"},
	})
	if err != nil {
		t.Fatalf("CreateSession (new): %v", err)
	}

	deadline := time.After(time.Second)
	for newHits == 0 {
		select {
		case <-deadline:
			t.Fatal("new session's join-dispatch never reached the re-registered endpoint")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if oldHits == 0 {
		t.Fatal("old session's join-dispatch should still be hitting its captured endpoint")
	}
}
