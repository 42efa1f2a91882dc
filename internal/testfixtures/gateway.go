// Package testfixtures provides injectable fakes for the session core's test
// suites, in place of a mocking framework — matching the style of fakes kept
// alongside a storage layer's tests elsewhere in this repo's reference
// material.
package testfixtures

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rosielabs/sessioncore/internal/rtcgateway"
)

// FakeGateway is an in-memory rtcgateway.Gateway for orchestrator tests. It
// never touches the network; monitor events are injected by the test via
// Emit.
type FakeGateway struct {
	mu sync.Mutex

	CreateRoomErr error
	DeleteRoomErr error

	monitors map[string]*FakeMonitor

	// MintedTokens records every MintToken call for assertions.
	MintedTokens []MintCall
}

type MintCall struct {
	Identity string
	Room     string
	Grants   []rtcgateway.Grant
	TTL      time.Duration
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{monitors: make(map[string]*FakeMonitor)}
}

func (g *FakeGateway) CreateRoom(ctx context.Context, name string, opts rtcgateway.RoomOptions) error {
	return g.CreateRoomErr
}

func (g *FakeGateway) DeleteRoom(ctx context.Context, name string) error {
	return g.DeleteRoomErr
}

func (g *FakeGateway) MintToken(identity, room string, grants []rtcgateway.Grant, ttl time.Duration) (string, error) {
	g.mu.Lock()
	g.MintedTokens = append(g.MintedTokens, MintCall{Identity: identity, Room: room, Grants: grants, TTL: ttl})
	g.mu.Unlock()
	return fmt.Sprintf("token-%s", identity), nil
}

func (g *FakeGateway) OpenMonitor(ctx context.Context, room, orchestratorIdentity string, monitorTTL time.Duration) (rtcgateway.MonitorHandle, error) {
	m := &FakeMonitor{events: make(chan rtcgateway.RoomEvent, 64), closed: make(chan struct{})}
	g.mu.Lock()
	g.monitors[room] = m
	g.mu.Unlock()
	return m, nil
}

// MonitorFor returns the monitor opened for room, so a test can Emit events
// into it, or nil if no monitor has been opened for that room yet.
func (g *FakeGateway) MonitorFor(room string) *FakeMonitor {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.monitors[room]
}

// FakeMonitor is a test-controlled rtcgateway.MonitorHandle.
type FakeMonitor struct {
	events chan rtcgateway.RoomEvent
	closed chan struct{}
	once   sync.Once
}

// Emit injects event as though the RTC server had sent it.
func (m *FakeMonitor) Emit(event rtcgateway.RoomEvent) {
	select {
	case m.events <- event:
	case <-m.closed:
	}
}

func (m *FakeMonitor) Events() <-chan rtcgateway.RoomEvent {
	return m.events
}

func (m *FakeMonitor) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}
