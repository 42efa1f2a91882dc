package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/rosielabs/sessioncore/internal/registry"
)

func TestPutThenGetReturnsCopyNotLiveReference(t *testing.T) {
	store := NewStore()
	sess := New("s1", "room-s1", nil, nil)
	store.Put(sess)

	got, err := store.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Status = StatusTerminated

	fresh, err := store.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fresh.Status != StatusCreating {
		t.Fatalf("mutating a Get() result leaked into the store: got %s", fresh.Status)
	}
}

func TestGetOnMissingIDReturnsNotFound(t *testing.T) {
	store := NewStore()
	_, err := store.Get("ghost")
	var nf *ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateMutatesUnderLockAndReturnsCopy(t *testing.T) {
	store := NewStore()
	store.Put(New("s1", "room-s1", []registry.Record{{ServiceID: "asr-1"}}, nil))

	result, err := store.Update("s1", func(s *Session) error {
		s.MarkServiceReady("asr-1")
		s.SetStatus(StatusReady)
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if result.Status != StatusReady {
		t.Fatalf("got status %s, want Ready", result.Status)
	}

	fresh, _ := store.Get("s1")
	if fresh.Status != StatusReady {
		t.Fatalf("update did not persist: got %s", fresh.Status)
	}
}

func TestDeleteRemovesSession(t *testing.T) {
	store := NewStore()
	store.Put(New("s1", "room-s1", nil, nil))

	if err := store.Delete("s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get("s1"); err == nil {
		t.Fatal("expected not-found after delete")
	}
}

func TestListReturnsAllSessions(t *testing.T) {
	store := NewStore()
	store.Put(New("s1", "room-s1", nil, nil))
	store.Put(New("s2", "room-s2", nil, nil))

	all := store.List()
	if len(all) != 2 {
		t.Fatalf("got %d sessions, want 2", len(all))
	}
}

func TestConcurrentUpdatesOnSameSessionAreSerialized(t *testing.T) {
	store := NewStore()
	store.Put(New("s1", "room-s1", []registry.Record{{ServiceID: "a"}, {ServiceID: "b"}}, nil))

	var wg sync.WaitGroup
	services := []string{"a", "b"}
	for _, svc := range services {
		svc := svc
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update("s1", func(s *Session) error {
				s.MarkServiceReady(svc)
				return nil
			})
		}()
	}
	wg.Wait()

	final, _ := store.Get("s1")
	if !final.AllServicesReady() {
		t.Fatalf("expected both services ready, got %v", final.ReadyServices)
	}
}
